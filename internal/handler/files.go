package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/gallery"
)

// FilesHandler serves the My Files gallery.
type FilesHandler struct {
	gallery   *gallery.Gallery
	jwtSecret string
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(g *gallery.Gallery, jwtSecret string) *FilesHandler {
	return &FilesHandler{gallery: g, jwtSecret: jwtSecret}
}

type selectionRequest struct {
	IDs []string `json:"ids"`
}

func (h *FilesHandler) selection(req events.APIGatewayProxyRequest) (*gallery.Selection, *events.APIGatewayProxyResponse) {
	var body selectionRequest
	if err := decodeBody(req, &body); err != nil {
		resp := textResponse(http.StatusBadRequest, "Invalid request body")
		return nil, &resp
	}
	sel := gallery.NewSelection(body.IDs...)
	if sel.Len() == 0 {
		resp := textResponse(http.StatusBadRequest, gallery.ErrEmptySelection.Error())
		return nil, &resp
	}
	return sel, nil
}

// List handles GET /files and returns scans grouped by folder.
func (h *FilesHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}
	groups, err := h.gallery.Workbench(ctx, "")
	if err != nil {
		log.Printf("Workbench error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to list files"), nil
	}
	if groups == nil {
		groups = []gallery.Group{}
	}
	return jsonResponse(http.StatusOK, groups), nil
}

// Search handles GET /files/search?q=.
func (h *FilesHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}
	query := req.QueryStringParameters["q"]
	if query == "" {
		return textResponse(http.StatusBadRequest, "Query parameter 'q' is required"), nil
	}
	groups, err := h.gallery.Workbench(ctx, query)
	if err != nil {
		log.Printf("Workbench error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to search files"), nil
	}
	if groups == nil {
		groups = []gallery.Group{}
	}
	return jsonResponse(http.StatusOK, groups), nil
}

// DeleteResponse reports a bulk delete.
type DeleteResponse struct {
	Deleted int      `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// Delete handles POST /files/delete with {"ids": [...]}.
// Partial failures still answer 200 with the IDs that remain.
func (h *FilesHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}
	sel, bad := h.selection(req)
	if bad != nil {
		return *bad, nil
	}

	deleted, err := h.gallery.DeleteSelected(ctx, sel)
	if err != nil {
		log.Printf("DeleteSelected: %v", err)
	}
	return jsonResponse(http.StatusOK, DeleteResponse{Deleted: deleted, Failed: sel.IDs()}), nil
}

// PDF handles POST /files/pdf and answers with the merged document.
func (h *FilesHandler) PDF(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}
	sel, bad := h.selection(req)
	if bad != nil {
		return *bad, nil
	}

	var buf bytes.Buffer
	if _, err := h.gallery.ConvertToPDF(ctx, sel, &buf); err != nil {
		switch {
		case errors.Is(err, gallery.ErrNoImages), errors.Is(err, adapter.ErrNotFound):
			return textResponse(http.StatusBadRequest, err.Error()), nil
		default:
			log.Printf("ConvertToPDF error: %v", err)
			return textResponse(http.StatusInternalServerError, "Failed to create PDF"), nil
		}
	}

	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(buf.Bytes()),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type":        "application/pdf",
			"Content-Disposition": `attachment; filename="scans.pdf"`,
		},
	}, nil
}
