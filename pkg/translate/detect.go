package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/chatbroker/chatbroker/pkg/httpclient"
)

// Detector tries each detect endpoint in order, falling back to a
// CJK/French-marker heuristic when every endpoint fails.
type Detector struct {
	mu        sync.RWMutex
	endpoints []string
	client    *httpclient.Client
	logger    *slog.Logger
}

func newDetector(endpoints []string, client *httpclient.Client, logger *slog.Logger) *Detector {
	return &Detector{endpoints: endpoints, client: client, logger: logger}
}

func (d *Detector) setEndpoints(endpoints []string, client *httpclient.Client) {
	d.mu.Lock()
	d.endpoints = endpoints
	d.client = client
	d.mu.Unlock()
}

type detectResult struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Detect returns a 2-letter language code, never an error: any
// endpoint or parse failure falls through to the next endpoint, and
// exhausting all of them falls through to the heuristic.
func (d *Detector) Detect(ctx context.Context, text string) string {
	d.mu.RLock()
	endpoints := d.endpoints
	client := d.client
	d.mu.RUnlock()

	for _, ep := range endpoints {
		lang, err := d.detectOne(ctx, client, ep, text)
		if err != nil {
			d.logger.Warn("detect: endpoint failed, trying next", "error", err)
			continue
		}
		if lang != "" {
			return lang
		}
	}
	return heuristicDetect(text)
}

func (d *Detector) detectOne(ctx context.Context, client *httpclient.Client, endpoint, text string) (string, error) {
	body, _ := json.Marshal(map[string]string{"q": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("detect: %s returned status %d", endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("detect: read response: %w", err)
	}

	var results []detectResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("detect: decode response: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("detect: %s returned no results", endpoint)
	}
	lang := results[0].Language
	if len(lang) < 2 {
		return "en", nil
	}
	return lang[:2], nil
}
