package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/scannereffect"
)

// EffectProcessor is implemented by scannereffect.Client.
type EffectProcessor interface {
	Process(ctx context.Context, fileName string, content []byte, p scannereffect.Params) (*scannereffect.Result, error)
}

// EffectHandler proxies files to the scanner-effect backend.
type EffectHandler struct {
	processor EffectProcessor
	files     adapter.FileStore
	jwtSecret string
}

// NewEffectHandler creates a new EffectHandler.
func NewEffectHandler(processor EffectProcessor, files adapter.FileStore, jwtSecret string) *EffectHandler {
	return &EffectHandler{processor: processor, files: files, jwtSecret: jwtSecret}
}

// EffectRequest names a stored file by ID or carries the content inline.
// Missing params fall back to scannereffect.Defaults.
type EffectRequest struct {
	FileID   string                `json:"fileId"`
	FileName string                `json:"fileName"`
	Content  string                `json:"content"`
	Params   *scannereffect.Params `json:"params"`
}

// EffectResponse carries the processed document base64 encoded.
type EffectResponse struct {
	FileName string            `json:"fileName"`
	MIMEType string            `json:"mimeType"`
	Pages    int               `json:"pages,omitempty"`
	Content  string            `json:"content"`
	Stored   *adapter.FileStub `json:"stored,omitempty"`
	Warning  string            `json:"warning,omitempty"`
}

func (h *EffectHandler) input(ctx context.Context, body EffectRequest) (string, []byte, int, string) {
	if body.FileID != "" {
		f, err := h.files.GetFile(ctx, body.FileID)
		if errors.Is(err, adapter.ErrNotFound) {
			return "", nil, http.StatusNotFound, "File not found"
		}
		if err != nil {
			log.Printf("GetFile error: %v", err)
			return "", nil, http.StatusInternalServerError, "Failed to load file"
		}
		return f.Name, f.Content, 0, ""
	}
	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil || len(content) == 0 || body.FileName == "" {
		return "", nil, http.StatusBadRequest, "fileId or fileName and content are required"
	}
	return body.FileName, content, 0, ""
}

// Process handles POST /scanner-effect.
func (h *EffectHandler) Process(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}

	var body EffectRequest
	if err := decodeBody(req, &body); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	name, content, status, msg := h.input(ctx, body)
	if status != 0 {
		return textResponse(status, msg), nil
	}
	params := scannereffect.Defaults()
	if body.Params != nil {
		params = *body.Params
	}

	res, err := h.processor.Process(ctx, name, content, params)
	var statusErr *scannereffect.StatusError
	switch {
	case err == nil:
	case errors.Is(err, scannereffect.ErrDriveHandoff) && res != nil:
		log.Printf("Scanner effect drive handoff: %v", err)
	case errors.Is(err, scannereffect.ErrInvalidParams):
		return textResponse(http.StatusBadRequest, err.Error()), nil
	case errors.As(err, &statusErr), errors.Is(err, scannereffect.ErrInvalidPDF), errors.Is(err, scannereffect.ErrResultTooLarge):
		log.Printf("Scanner effect backend error: %v", err)
		return textResponse(http.StatusBadGateway, "Scanner effect failed"), nil
	default:
		log.Printf("Scanner effect error: %v", err)
		return textResponse(http.StatusInternalServerError, "Scanner effect failed"), nil
	}

	out := EffectResponse{
		FileName: res.FileName,
		MIMEType: res.MIMEType,
		Pages:    res.Pages,
		Content:  base64.StdEncoding.EncodeToString(res.Content),
		Stored:   res.Stored,
	}
	if err != nil {
		out.Warning = err.Error()
	}
	return jsonResponse(http.StatusOK, out), nil
}
