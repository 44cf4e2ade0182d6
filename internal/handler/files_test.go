package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/adapter/memory"
	"github.com/jun/scandrive/internal/gallery"
	"github.com/jun/scandrive/internal/handler"
)

func pngBytes(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func seedFiles(t *testing.T) (*memory.Store, map[string]string) {
	t.Helper()
	store := memory.NewStore(nil)
	ids := map[string]string{}
	files := []adapter.File{
		{FileStub: adapter.FileStub{Name: "receipt.png", MIMEType: "image/png", Folder: "Bills", Tags: []string{"scan"}}, Content: pngBytes(t, 8, 8, color.White)},
		{FileStub: adapter.FileStub{Name: "letter.png", MIMEType: "image/png", Tags: []string{"scan"}}, Content: pngBytes(t, 8, 8, color.Black)},
		{FileStub: adapter.FileStub{Name: "notes.pdf", MIMEType: "application/pdf", Folder: "Bills", Tags: []string{"scan"}}, Content: []byte("%PDF-1.4")},
		{FileStub: adapter.FileStub{Name: "other.png", MIMEType: "image/png"}, Content: pngBytes(t, 8, 8, color.White)},
	}
	for i := range files {
		stub, err := store.StoreFile(context.Background(), &files[i])
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids[stub.Name] = stub.ID
	}
	return store, ids
}

func TestFilesHandler_List(t *testing.T) {
	store, _ := seedFiles(t)
	h := handler.NewFilesHandler(gallery.New(store, nil), testJWTSecret)

	resp, err := h.List(context.Background(), makeRequest("GET", "/files", ""))
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}

	var groups []gallery.Group
	if err := json.Unmarshal([]byte(resp.Body), &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	total := 0
	folders := map[string]int{}
	for _, g := range groups {
		folders[g.Folder] = len(g.Files)
		total += len(g.Files)
	}
	if total != 3 {
		t.Errorf("Expected 3 scans, got %d", total)
	}
	if folders["Bills"] != 2 || folders[gallery.UncategorizedFolder] != 1 {
		t.Errorf("Unexpected grouping: %v", folders)
	}
}

func TestFilesHandler_Search(t *testing.T) {
	store, _ := seedFiles(t)
	h := handler.NewFilesHandler(gallery.New(store, nil), testJWTSecret)
	ctx := context.Background()

	req := makeRequest("GET", "/files/search", "")
	resp, _ := h.Search(ctx, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without q, got %d", resp.StatusCode)
	}

	req.QueryStringParameters["q"] = "RECEIPT"
	resp, _ = h.Search(ctx, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var groups []gallery.Group
	json.Unmarshal([]byte(resp.Body), &groups)
	if len(groups) != 1 || len(groups[0].Files) != 1 || groups[0].Files[0].Name != "receipt.png" {
		t.Errorf("Expected only receipt.png, got %+v", groups)
	}
}

func TestFilesHandler_Unauthorized(t *testing.T) {
	store, _ := seedFiles(t)
	h := handler.NewFilesHandler(gallery.New(store, nil), testJWTSecret)
	req := makeRequest("GET", "/files", "")
	req.Headers = map[string]string{}

	resp, _ := h.List(context.Background(), req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestFilesHandler_Delete(t *testing.T) {
	store, ids := seedFiles(t)
	h := handler.NewFilesHandler(gallery.New(store, nil), testJWTSecret)
	ctx := context.Background()

	resp, _ := h.Delete(ctx, makeRequest("POST", "/files/delete", `{"ids":[]}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty selection, got %d", resp.StatusCode)
	}

	body := `{"ids":["` + ids["receipt.png"] + `","` + ids["letter.png"] + `"]}`
	resp, _ = h.Delete(ctx, makeRequest("POST", "/files/delete", body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	var out handler.DeleteResponse
	json.Unmarshal([]byte(resp.Body), &out)
	if out.Deleted != 2 || len(out.Failed) != 0 {
		t.Errorf("Expected 2 deleted and none failed, got %+v", out)
	}
	stubs, _ := store.ListStubs(ctx)
	if len(stubs) != 2 {
		t.Errorf("Expected 2 files left, got %d", len(stubs))
	}
}

func TestFilesHandler_PDF(t *testing.T) {
	store, ids := seedFiles(t)
	h := handler.NewFilesHandler(gallery.New(store, nil), testJWTSecret)
	ctx := context.Background()

	body := `{"ids":["` + ids["receipt.png"] + `","` + ids["letter.png"] + `","` + ids["notes.pdf"] + `"]}`
	resp, _ := h.PDF(ctx, makeRequest("POST", "/files/pdf", body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	if !resp.IsBase64Encoded || resp.Headers["Content-Type"] != "application/pdf" {
		t.Errorf("Expected base64 application/pdf response, got %v", resp.Headers)
	}
	pdf, err := base64.StdEncoding.DecodeString(resp.Body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("Expected a PDF document, got %q", pdf[:min(len(pdf), 8)])
	}

	resp, _ = h.PDF(ctx, makeRequest("POST", "/files/pdf", `{"ids":["`+ids["notes.pdf"]+`"]}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 when nothing is an image, got %d", resp.StatusCode)
	}
}
