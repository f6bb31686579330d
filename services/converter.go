package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
)

// Converter turns a stored PDF into Markdown. The real work happens in
// the Python sidecar; this is only the client contract the workers see.
type Converter interface {
	Convert(ctx context.Context, sourceLocation string) (string, error)
}

// HTTPConverter calls the sidecar's /convert endpoint with the object
// key of the PDF to process. The sidecar reads the object itself, so
// large files never travel through this process.
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPConverter(baseURL string, timeout time.Duration) *HTTPConverter {
	return &HTTPConverter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type convertRequest struct {
	SourceLocation string `json:"source_location"`
}

type convertResponse struct {
	Success  bool   `json:"success"`
	Markdown string `json:"markdown"`
	Detail   string `json:"detail,omitempty"`
}

func (c *HTTPConverter) Convert(ctx context.Context, sourceLocation string) (string, error) {
	payload, err := json.Marshal(convertRequest{SourceLocation: sourceLocation})
	if err != nil {
		return "", models.NewPermanentError("convert", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", bytes.NewReader(payload))
	if err != nil {
		return "", models.NewPermanentError("convert", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// transport failures and timeouts may clear up on retry
		return "", models.NewTransientError("convert", "call converter", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logging.Logger.Error("fail closing converter response", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode >= 500 {
		return "", models.NewTransientError("convert",
			fmt.Sprintf("converter returned HTTP %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", models.NewPermanentError("convert",
			fmt.Sprintf("converter rejected request: HTTP %d: %s", resp.StatusCode, body), nil)
	}

	var parsed convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", models.NewTransientError("convert", "decode response", err)
	}
	if !parsed.Success {
		return "", models.NewPermanentError("convert", parsed.Detail, nil)
	}
	return parsed.Markdown, nil
}
