package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"clanchat/internal/config"
	"clanchat/pkg/logger"
)

// UploadHandlers relays image and voice attachments to the media host and
// returns the hosted URL for use in a message draft.
type UploadHandlers struct {
	cfg    config.MediaConfig
	client *http.Client
}

type uploadResponse struct {
	URL string `json:"url"`
}

func NewUploadHandlers(cfg config.MediaConfig) *UploadHandlers {
	return &UploadHandlers{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

func allowedMediaType(ct string) bool {
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "audio/")
}

func (h *UploadHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.UploadURL == "" {
		writeErrorMessage(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxBytes {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !allowedMediaType(contentType) {
		writeErrorMessage(w, http.StatusUnsupportedMediaType, "only image and audio uploads are accepted")
		return
	}

	url, err := h.forward(r, header.Filename, contentType, file)
	if err != nil {
		logger.Error("Upload relay error: %v", err)
		writeErrorMessage(w, http.StatusBadGateway, "media host rejected the upload")
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}

func (h *UploadHandlers) forward(r *http.Request, filename, contentType string, file io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.cfg.UploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("media host returned %s", resp.Status)
	}

	// Hosts differ on the field name.
	var out struct {
		URL       string `json:"url"`
		SecureURL string `json:"secure_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode media host response: %w", err)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL == "" {
		return "", fmt.Errorf("media host returned no url")
	}
	return out.URL, nil
}
