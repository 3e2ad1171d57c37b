// Copyright 2026 The Chatbroker Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package translate implements the TranslationCascade: best-effort
// text translation across multiple independent HTTP endpoints, with
// short-circuits for trivially-same-language pairs and a model-based
// final fallback.
package translate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/chatbroker/chatbroker/pkg/config"
	"github.com/chatbroker/chatbroker/pkg/httpclient"
)

// Translator is the single capability every cascade adapter
// implements — an ordered list of these is what the cascade driver
// consults, agnostic to how many there are or what backs each one.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// containsCJK reports whether s has a character in the CJK Unified
// Ideographs block (U+4E00–U+9FFF).
func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

var (
	frMarkers   = []string{" le ", " la ", " de ", " je ", "vous", "avoir", "être", "pour", " s'"}
	frDiacritic = regexp.MustCompile(`[áéíóúñçàèùâêîôûëïüœ]`)
)

func heuristicDetect(text string) string {
	if containsCJK(text) {
		return "zh"
	}
	lower := strings.ToLower(text)
	for _, m := range frMarkers {
		if strings.Contains(lower, m) {
			return "fr"
		}
	}
	if frDiacritic.MatchString(lower) {
		return "fr"
	}
	return "en"
}

// Cascade is the TranslationCascade: an ordered list of Translator
// endpoints consulted in turn, backed by a language detector and a
// model-based fallback for when every endpoint returns the input
// unchanged.
type Cascade struct {
	mu         sync.RWMutex
	endpoints  []Translator
	detector   *Detector
	fallback   *ModelFallback
	translateOn bool
	logger     *slog.Logger
}

// New builds a Cascade from configuration: one libreEndpoint adapter
// per configured LIBRE_ENDPOINTS URL, a Detector over
// LIBRE_DETECT_ENDPOINTS, and an optional ModelFallback when
// LLM_BASE_URL is configured.
func New(cfg *config.Config, client *httpclient.Client, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cascade{
		translateOn: cfg.TranslationOn,
		logger:      logger,
		detector:    newDetector(cfg.LibreDetect, client, logger),
	}
	c.setEndpoints(cfg.LibreEndpoints, client)
	if cfg.LLMBaseURL != "" {
		c.fallback = newModelFallback(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, client)
	}
	return c
}

func (c *Cascade) setEndpoints(urls []string, client *httpclient.Client) {
	eps := make([]Translator, 0, len(urls))
	for _, u := range urls {
		eps = append(eps, &libreEndpoint{url: u, client: client, logger: c.logger})
	}
	c.mu.Lock()
	c.endpoints = eps
	c.mu.Unlock()
}

// SetEndpoints atomically replaces the configured translate and
// detect endpoint lists, used by the fsnotify-driven hot reload in
// reload.go.
func (c *Cascade) SetEndpoints(translateURLs, detectURLs []string, client *httpclient.Client) {
	c.setEndpoints(translateURLs, client)
	c.detector.setEndpoints(detectURLs, client)
}

// Translate never returns an error: every failure mode degrades to
// returning the original text, since translation is a best-effort
// enhancement, not a requirement for message delivery.
func (c *Cascade) Translate(ctx context.Context, text, target, source string) string {
	if text == "" || !c.translateOn {
		return text
	}
	target = config.NormalizeLang(target)

	if target == "zh" && containsCJK(text) {
		return text
	}

	if source != "auto" && source != "" {
		if strings.HasPrefix(config.NormalizeLang(source), target) {
			return text
		}
	} else {
		detected := c.detector.Detect(ctx, text)
		if strings.HasPrefix(detected, target) {
			return text
		}
	}

	c.mu.RLock()
	endpoints := c.endpoints
	c.mu.RUnlock()

	for _, ep := range endpoints {
		out, err := ep.Translate(ctx, text, source, target)
		if err != nil {
			c.logger.Warn("translate: endpoint failed, trying next", "error", err)
			continue
		}
		if out != "" && out != text {
			return out
		}
	}

	if c.fallback != nil {
		out, err := c.fallback.Translate(ctx, text, source, target)
		if err != nil {
			c.logger.Warn("translate: model fallback failed", "error", err)
			return text
		}
		if out != "" {
			return out
		}
	}

	return text
}
