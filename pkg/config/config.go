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

// Package config loads chatbroker's runtime configuration from the
// environment (optionally seeded from a .env file), the same
// env-first approach the rest of this codebase's ancestry uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-configurable knob the broker, its
// translation cascade, and its persistence layer read at startup.
type Config struct {
	// HTTP / CORS
	ListenAddr     string
	FrontendOrigin string
	APIBaseURL     string
	StaticDir      string

	// Client-facing defaults
	DefaultClientLang string
	TranslationOn     bool
	MaxMessageLength  int

	// Coordinator timings
	BotInactivity  time.Duration
	BotSuppress    time.Duration
	LearningWindow time.Duration

	// Translation cascade
	TranslationTimeout time.Duration
	LibreEndpoints     []string
	LibreDetect        []string
	LibreEndpointsFile string

	// Model-based fallback translator
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Knowledge store / message log persistence
	KnowledgeDBDriver string
	KnowledgeDSN      string

	// Agent authentication (additive, optional)
	AgentJWTSecret string

	// Observability
	LogLevel     string
	LogJSON      bool
	MetricsAddr  string
	OTLPEndpoint string
}

// Load reads configuration from the environment, applying sane
// defaults for local development. A .env file in the working directory
// is loaded first if present; real environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		FrontendOrigin: getEnv("FRONTEND_ORIGIN", "*"),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		StaticDir:      getEnv("STATIC_DIR", ""),

		DefaultClientLang: NormalizeLang(getEnv("DEFAULT_CLIENT_LANG", "fr")),
		TranslationOn:     getBoolEnv("TRANSLATION_ENABLED", true),
		MaxMessageLength:  getIntEnv("MAX_MESSAGE_LENGTH", 500),

		BotInactivity:  getDurationEnv("BOT_INACTIVITY_SEC", 30*time.Second),
		BotSuppress:    getDurationEnv("BOT_SUPPRESS_SEC", 5*time.Second),
		LearningWindow: 180 * time.Second,

		TranslationTimeout: getDurationEnv("TRANSLATION_TIMEOUT_SEC", 5*time.Second),
		LibreEndpoints:     getListEnv("LIBRE_ENDPOINTS", defaultLibreEndpoints),
		LibreDetect:        getListEnv("LIBRE_DETECT_ENDPOINTS", nil),
		LibreEndpointsFile: getEnv("LIBRE_ENDPOINTS_FILE", ""),

		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-oss-20b"),

		KnowledgeDBDriver: getEnv("KNOWLEDGE_DB_DRIVER", "sqlite"),
		KnowledgeDSN:      getEnv("KNOWLEDGE_DSN", "chatbroker.db"),

		AgentJWTSecret: getEnv("AGENT_JWT_SECRET", ""),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogJSON:      getBoolEnv("LOG_JSON", false),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if len(cfg.LibreDetect) == 0 {
		cfg.LibreDetect = DeriveDetectEndpoints(cfg.LibreEndpoints)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.BotInactivity <= 0 || c.BotSuppress < 0 {
		return fmt.Errorf("config: bot timing windows must be non-negative")
	}
	switch c.KnowledgeDBDriver {
	case "sqlite", "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("config: invalid KNOWLEDGE_DB_DRIVER %q (valid: sqlite, postgres, mysql)", c.KnowledgeDBDriver)
	}
	return nil
}

var defaultLibreEndpoints = []string{
	"https://translate.terraprint.co/translate",
	"https://libretranslate.de/translate",
	"https://translate.fedilab.app/translate",
}

// DeriveDetectEndpoints substitutes the translate path segment for the
// detect endpoint, so operators only need to configure one list in the
// common case. Exported so a hot-reloaded endpoint file (see
// pkg/translate's fsnotify watcher) can rebuild the detect list the
// same way Load does.
func DeriveDetectEndpoints(translate []string) []string {
	out := make([]string, 0, len(translate))
	for _, ep := range translate {
		out = append(out, strings.Replace(ep, "/translate", "/detect", 1))
	}
	return out
}

func NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) < 2 {
		return "en"
	}
	return lang[:2]
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}

func getListEnv(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
