package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chatbroker/chatbroker/pkg/httpclient"
)

// ModelFallback invokes a generic OpenAI-compatible chat-completions
// endpoint as the terminal translation step when the whole endpoint
// cascade returned the input unchanged. No vendor SDK: one wire
// format, one base URL.
type ModelFallback struct {
	baseURL string
	apiKey  string
	model   string
	client  *httpclient.Client
}

func newModelFallback(baseURL, apiKey, model string, client *httpclient.Client) *ModelFallback {
	return &ModelFallback{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func systemPrompt(target string) string {
	switch target {
	case "zh":
		return "You are a translation engine. Translate the user's message into Chinese. Output only the translation, with no explanation or commentary."
	case "fr":
		return "You are a translation engine. Translate the user's message into French. Output only the translation, with no explanation or commentary."
	default:
		return fmt.Sprintf("You are a translation engine. Translate the user's message into the language with ISO 639-1 code %q. Output only the translation, with no explanation or commentary.", target)
	}
}

func tokenBudget(text string) int {
	n := len(text) * 3
	if n < 128 {
		return 128
	}
	if n > 2048 {
		return 2048
	}
	return n
}

func (f *ModelFallback) Translate(ctx context.Context, text, source, target string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: f.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(target)},
			{Role: "user", Content: text},
		},
		MaxTokens:   tokenBudget(text),
		Temperature: 0,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("model fallback: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("model fallback: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("model fallback: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("model fallback: read response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("model fallback: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model fallback: empty choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
