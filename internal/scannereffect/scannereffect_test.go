package scannereffect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jun/scandrive/internal/adapter/memory"
)

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestDefaults(t *testing.T) {
	p := Defaults()
	if p.Brightness != 0 || p.Contrast != 1 || p.Blur != 0.5 || p.Noise != 0.2 {
		t.Errorf("Unexpected numeric defaults: %+v", p)
	}
	if p.Yellowish || p.AutoCrop || p.GoogleDriveSync {
		t.Errorf("Expected flags off: %+v", p)
	}
	if p.RenderResolution != 200 || p.Colorspace != ColorspaceColor || p.ScannyFilter != FilterNone {
		t.Errorf("Unexpected defaults: %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"grayscale", func(p *Params) { p.Colorspace = ColorspaceGrayscale }, false},
		{"magic color", func(p *Params) { p.ScannyFilter = FilterMagicColor }, false},
		{"unknown colorspace", func(p *Params) { p.Colorspace = "sepia" }, true},
		{"unknown filter", func(p *Params) { p.ScannyFilter = "vivid" }, true},
		{"zero resolution", func(p *Params) { p.RenderResolution = 0 }, true},
		{"negative blur", func(p *Params) { p.Blur = -1 }, true},
		{"negative brightness allowed", func(p *Params) { p.Brightness = -0.3 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Defaults()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestBuildForm(t *testing.T) {
	var buf bytes.Buffer
	ct, err := BuildForm(&buf, "doc.pdf", []byte("content"), Defaults())
	if err != nil {
		t.Fatalf("BuildForm failed: %v", err)
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		t.Fatal(err)
	}

	r := multipart.NewReader(&buf, params["boundary"])
	want := []struct{ name, value string }{
		{"fileInput", "content"},
		{"brightness", "0"},
		{"contrast", "1"},
		{"blur", "0.5"},
		{"noise", "0.2"},
		{"yellowish", "false"},
		{"renderResolution", "200"},
		{"colorspace", "color"},
		{"autoCrop", "false"},
		{"scannyFilter", "none"},
		{"googleDriveSync", "false"},
	}
	for _, w := range want {
		part, err := r.NextPart()
		if err != nil {
			t.Fatalf("Expected part %s: %v", w.name, err)
		}
		if part.FormName() != w.name {
			t.Errorf("Expected field %s, got %s", w.name, part.FormName())
		}
		v, _ := io.ReadAll(part)
		if string(v) != w.value {
			t.Errorf("Field %s: expected %q, got %q", w.name, w.value, v)
		}
		if w.name == "fileInput" && part.FileName() != "doc.pdf" {
			t.Errorf("Expected file name doc.pdf, got %s", part.FileName())
		}
	}
	if _, err := r.NextPart(); err != io.EOF {
		t.Errorf("Expected no further parts, got %v", err)
	}
}

func newBackend(t *testing.T, status int, body []byte, header map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EndpointPath {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, v := range header {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Process_PDF(t *testing.T) {
	srv := newBackend(t, http.StatusOK, minimalPDF(2), map[string]string{
		"Content-Type":        "application/pdf",
		"Content-Disposition": `attachment; filename="doc_scanned.pdf"`,
	})
	c := NewClient(srv.URL+"/", time.Second, WithLogger(nopLogger{}))

	res, err := c.Process(context.Background(), "doc.pdf", []byte("%PDF-in"), Defaults())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Pages != 2 {
		t.Errorf("Expected 2 pages, got %d", res.Pages)
	}
	if res.FileName != "doc_scanned.pdf" {
		t.Errorf("Expected doc_scanned.pdf, got %s", res.FileName)
	}
	if res.Stored != nil {
		t.Error("Expected nothing stored without drive sync")
	}
}

func TestClient_Process_StatusError(t *testing.T) {
	srv := newBackend(t, http.StatusInternalServerError, []byte("render failed"), nil)
	c := NewClient(srv.URL, time.Second)

	_, err := c.Process(context.Background(), "doc.pdf", []byte("x"), Defaults())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StatusError, got %v", err)
	}
	if se.Status != 500 || se.Body != "render failed" {
		t.Errorf("Unexpected status error: %+v", se)
	}
}

func TestClient_Process_BrokenPDF(t *testing.T) {
	srv := newBackend(t, http.StatusOK, []byte("%PDF-1.4 truncated"), map[string]string{"Content-Type": "application/pdf"})
	c := NewClient(srv.URL, time.Second)

	if _, err := c.Process(context.Background(), "doc.pdf", []byte("x"), Defaults()); !errors.Is(err, ErrInvalidPDF) {
		t.Errorf("Expected ErrInvalidPDF, got %v", err)
	}
}

func TestClient_Process_ResultSize(t *testing.T) {
	const limit = 1024
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"under limit", limit - 1, nil},
		{"at limit", limit, nil},
		{"one byte over", limit + 1, ErrResultTooLarge},
		{"far over", 4 * limit, ErrResultTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bytes.Repeat([]byte{0xAB}, tt.size)
			srv := newBackend(t, http.StatusOK, body, map[string]string{"Content-Type": "image/jpeg"})
			store := memory.NewStore(nil)
			var handed []string
			uploader := DriveUploaderFunc(func(_ context.Context, id string) error {
				handed = append(handed, id)
				return nil
			})
			c := NewClient(srv.URL, time.Second, WithMaxResultSize(limit), WithDriveSync(store, uploader), WithLogger(nopLogger{}))

			p := Defaults()
			p.GoogleDriveSync = true
			res, err := c.Process(context.Background(), "photo.jpg", []byte("x"), p)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if res != nil {
					t.Error("Expected no result for an oversized body")
				}
				if stubs, _ := store.ListStubs(context.Background()); len(stubs) != 0 {
					t.Errorf("Expected nothing stored, got %d", len(stubs))
				}
				if len(handed) != 0 {
					t.Errorf("Expected no drive handoff, got %v", handed)
				}
				return
			}
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if len(res.Content) != tt.size {
				t.Errorf("Expected %d bytes, got %d", tt.size, len(res.Content))
			}
			if len(handed) != 1 {
				t.Errorf("Expected one drive handoff, got %v", handed)
			}
		})
	}
}

func TestClient_Process_InvalidParams(t *testing.T) {
	c := NewClient("http://unused", time.Second)
	p := Defaults()
	p.Colorspace = "nope"
	if _, err := c.Process(context.Background(), "doc.pdf", nil, p); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams, got %v", err)
	}
}

func TestClient_Process_DriveSync(t *testing.T) {
	srv := newBackend(t, http.StatusOK, minimalPDF(1), map[string]string{"Content-Type": "application/pdf"})
	store := memory.NewStore(nil)
	var handed []string
	c := NewClient(srv.URL, time.Second, WithLogger(nopLogger{}), WithDriveSync(store, DriveUploaderFunc(func(_ context.Context, id string) error {
		handed = append(handed, id)
		return nil
	})))

	p := Defaults()
	p.GoogleDriveSync = true
	res, err := c.Process(context.Background(), "doc.pdf", []byte("x"), p)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Stored == nil || !res.Stored.HasTag(ProcessedTag) {
		t.Fatalf("Expected processed file stored, got %+v", res.Stored)
	}
	if len(handed) != 1 || handed[0] != res.Stored.ID {
		t.Errorf("Expected stored file handed to drive, got %v", handed)
	}
}

func TestClient_Process_DriveHandoffFails(t *testing.T) {
	srv := newBackend(t, http.StatusOK, []byte("jpegish"), map[string]string{"Content-Type": "image/jpeg"})
	c := NewClient(srv.URL, time.Second, WithDriveSync(memory.NewStore(nil), DriveUploaderFunc(func(context.Context, string) error {
		return errors.New("redis down")
	})))

	p := Defaults()
	p.GoogleDriveSync = true
	res, err := c.Process(context.Background(), "a.jpg", []byte("x"), p)
	if !errors.Is(err, ErrDriveHandoff) {
		t.Errorf("Expected ErrDriveHandoff, got %v", err)
	}
	if res == nil || res.Stored == nil {
		t.Error("Expected result to be returned with the error")
	}
}

func TestCountPages(t *testing.T) {
	n, err := CountPages(minimalPDF(3))
	if err != nil {
		t.Fatalf("CountPages failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 pages, got %d", n)
	}
	if _, err := CountPages([]byte("garbage")); !errors.Is(err, ErrInvalidPDF) {
		t.Errorf("Expected ErrInvalidPDF, got %v", err)
	}
}
