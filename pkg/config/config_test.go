package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "LISTEN_ADDR", "DEFAULT_CLIENT_LANG", "MAX_MESSAGE_LENGTH", "KNOWLEDGE_DB_DRIVER")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "fr", cfg.DefaultClientLang)
	require.Equal(t, 500, cfg.MaxMessageLength)
	require.Equal(t, "sqlite", cfg.KnowledgeDBDriver)
	require.True(t, cfg.TranslationOn)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("DEFAULT_CLIENT_LANG", "EN-US")
	t.Setenv("MAX_MESSAGE_LENGTH", "250")
	t.Setenv("TRANSLATION_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, "en", cfg.DefaultClientLang)
	require.Equal(t, 250, cfg.MaxMessageLength)
	require.False(t, cfg.TranslationOn)
}

func TestLoadRejectsNonPositiveMaxMessageLength(t *testing.T) {
	t.Setenv("MAX_MESSAGE_LENGTH", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownKnowledgeDriver(t *testing.T) {
	t.Setenv("KNOWLEDGE_DB_DRIVER", "mongodb")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDerivesDetectEndpointsWhenUnset(t *testing.T) {
	clearEnv(t, "LIBRE_DETECT_ENDPOINTS")
	t.Setenv("LIBRE_ENDPOINTS", "https://example.com/translate")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/detect"}, cfg.LibreDetect)
}

func TestDeriveDetectEndpoints(t *testing.T) {
	got := DeriveDetectEndpoints([]string{"https://a/translate", "https://b/translate"})
	require.Equal(t, []string{"https://a/detect", "https://b/detect"}, got)
}

func TestNormalizeLang(t *testing.T) {
	require.Equal(t, "en", NormalizeLang(""))
	require.Equal(t, "en", NormalizeLang("x"))
	require.Equal(t, "fr", NormalizeLang("FR"))
	require.Equal(t, "zh", NormalizeLang("zh-CN"))
}
