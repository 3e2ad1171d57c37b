package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/chatbroker/chatbroker/pkg/httpclient"
)

// libreEndpoint adapts one LibreTranslate-compatible HTTP endpoint to
// the Translator interface.
type libreEndpoint struct {
	url    string
	client *httpclient.Client
	logger *slog.Logger
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (e *libreEndpoint) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == "" {
		source = "auto"
	}

	resp, err := e.post(ctx, jsonBody(text, source, target), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// LibreTranslate rejects some payloads with one of these statuses
	// when it can't parse the JSON body; retrying with form encoding is
	// a documented compatibility fallback for such deployments.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity {
		resp.Body.Close()
		resp, err = e.post(ctx, formBody(text, source, target), "application/x-www-form-urlencoded")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("translate: %s returned status %d", e.url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("translate: read response: %w", err)
	}

	var parsed libreResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	return parsed.TranslatedText, nil
}

func (e *libreEndpoint) post(ctx context.Context, body []byte, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return e.client.Do(req)
}

func jsonBody(text, source, target string) []byte {
	b, _ := json.Marshal(map[string]string{
		"q":      text,
		"source": source,
		"target": target,
		"format": "text",
	})
	return b
}

func formBody(text, source, target string) []byte {
	v := url.Values{}
	v.Set("q", text)
	v.Set("source", source)
	v.Set("target", target)
	v.Set("format", "text")
	return []byte(v.Encode())
}
