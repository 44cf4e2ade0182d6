package handler

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/capture"
	"github.com/jun/scandrive/internal/imaging"
)

// ScanHandler stores photos taken by a client camera as scans.
type ScanHandler struct {
	files     adapter.FileStore
	detector  capture.Detector
	bridge    capture.MatrixBridge
	jwtSecret string
	now       func() time.Time
}

// NewScanHandler creates a ScanHandler. A nil detector disables auto crop.
func NewScanHandler(files adapter.FileStore, detector capture.Detector, bridge capture.MatrixBridge, jwtSecret string) *ScanHandler {
	return &ScanHandler{files: files, detector: detector, bridge: bridge, jwtSecret: jwtSecret, now: time.Now}
}

// ScanRequest carries the photo as base64 or a data URL.
type ScanRequest struct {
	Image    string `json:"image"`
	Folder   string `json:"folder"`
	AutoCrop bool   `json:"autoCrop"`
}

// ScanResponse is the stored scan.
type ScanResponse struct {
	File      *adapter.FileStub `json:"file"`
	Corrected bool              `json:"corrected"`
}

func decodeImageData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

// Create handles POST /scans.
func (h *ScanHandler) Create(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}

	var body ScanRequest
	if err := decodeBody(req, &body); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	raw, err := decodeImageData(body.Image)
	if err != nil || len(raw) == 0 {
		return textResponse(http.StatusBadRequest, "Invalid image data"), nil
	}
	img, _, err := imaging.Decode(raw)
	if err != nil {
		return textResponse(http.StatusBadRequest, "Unsupported image"), nil
	}

	corrected := false
	if body.AutoCrop && h.detector != nil && h.bridge != nil {
		page, err := capture.Straighten(h.detector, h.bridge, img)
		switch {
		case err != nil:
			log.Printf("Auto crop fell back to raw image: %v", err)
		case page != nil:
			img, corrected = page, true
		}
	}

	stub, err := capture.StoreScan(ctx, h.files, img, body.Folder, h.now(), log.Default())
	if err != nil {
		log.Printf("StoreScan error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to save scan"), nil
	}
	return jsonResponse(http.StatusCreated, ScanResponse{File: stub, Corrected: corrected}), nil
}
