package googledrive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/drive/v3"
)

const (
	multipartBoundary = "foo_bar_baz"
	defaultMIMEType   = "application/octet-stream"
)

// UploadError reports a non-success response from the multipart upload endpoint.
type UploadError struct {
	Name   string
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed: %d %s - %s", e.Name, e.Status, http.StatusText(e.Status), e.Body)
}

type uploadMetadata struct {
	Name     string   `json:"name"`
	Parents  []string `json:"parents"`
	MimeType string   `json:"mimeType"`
}

// encodeMultipartRelated builds a multipart/related body with a JSON metadata
// part followed by the base64 encoded content part.
func encodeMultipartRelated(name, mimeType string, content []byte, folderID string) ([]byte, error) {
	if mimeType == "" {
		mimeType = defaultMIMEType
	}
	meta, err := json.Marshal(uploadMetadata{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: mimeType,
	})
	if err != nil {
		return nil, err
	}

	delimiter := "\r\n--" + multipartBoundary + "\r\n"
	closeDelim := "\r\n--" + multipartBoundary + "--"

	var buf bytes.Buffer
	buf.WriteString(delimiter)
	buf.WriteString("Content-Type: application/json\r\n\r\n")
	buf.Write(meta)
	buf.WriteString(delimiter)
	buf.WriteString("Content-Type: " + mimeType + "\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	buf.WriteString(base64.StdEncoding.EncodeToString(content))
	buf.WriteString(closeDelim)
	return buf.Bytes(), nil
}

// UploadFile uploads content as name into folderID and returns the new file's ID.
// A non-2xx response yields *UploadError.
func (d *DriveAdapter) UploadFile(ctx context.Context, name, mimeType string, content []byte, folderID string) (string, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	body, err := encodeMultipartRelated(name, mimeType, content, folderID)
	if err != nil {
		return "", fmt.Errorf("encode upload %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.uploadURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+multipartBoundary)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{Name: name, Status: resp.StatusCode, Body: string(respBody)}
	}

	var created drive.File
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("decode upload response for %s: %w", name, err)
	}
	return created.Id, nil
}
