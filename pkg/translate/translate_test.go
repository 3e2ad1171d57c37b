package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatbroker/chatbroker/pkg/config"
	"github.com/chatbroker/chatbroker/pkg/httpclient"
)

func newTestCascade(t *testing.T, endpointHandler http.HandlerFunc) (*Cascade, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(endpointHandler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		TranslationOn:  true,
		LibreEndpoints: []string{srv.URL + "/translate"},
		LibreDetect:    []string{srv.URL + "/detect"},
	}
	client := httpclient.New(httpclient.WithMaxRetries(0))
	return New(cfg, client, nil), srv
}

func TestTranslateEmptyInputReturnsUnchanged(t *testing.T) {
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("endpoint should not be called for empty input")
	})
	require.Equal(t, "", cascade.Translate(context.Background(), "", "fr", "auto"))
}

func TestTranslateDisabledReturnsUnchanged(t *testing.T) {
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("endpoint should not be called when translation is disabled")
	})
	cascade.translateOn = false
	require.Equal(t, "你好", cascade.Translate(context.Background(), "你好", "fr", "auto"))
}

func TestTranslateCJKShortCircuitToZh(t *testing.T) {
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("endpoint should not be called when input is already CJK targeting zh")
	})
	require.Equal(t, "你好世界", cascade.Translate(context.Background(), "你好世界", "zh", "auto"))
}

func TestTranslateSameSourcePrefixShortCircuits(t *testing.T) {
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("endpoint should not be called when source already matches target")
	})
	require.Equal(t, "bonjour", cascade.Translate(context.Background(), "bonjour", "fr", "fr"))
}

func TestTranslateCallsEndpointAndReturnsResult(t *testing.T) {
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/detect":
			json.NewEncoder(w).Encode([]map[string]any{{"language": "en", "confidence": 0.9}})
		case "/translate":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]string{"translatedText": "Bonjour " + body["q"]})
		}
	})
	out := cascade.Translate(context.Background(), "World", "fr", "auto")
	require.Equal(t, "Bonjour World", out)
}

func TestTranslateEndpointBadRequestRetriesFormEncoded(t *testing.T) {
	calls := 0
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/detect":
			json.NewEncoder(w).Encode([]map[string]any{{"language": "en"}})
		case "/translate":
			calls++
			if r.Header.Get("Content-Type") == "application/json" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			require.NoError(t, r.ParseForm())
			json.NewEncoder(w).Encode(map[string]string{"translatedText": "Bonjour " + r.FormValue("q")})
		}
	})
	out := cascade.Translate(context.Background(), "World", "fr", "auto")
	require.Equal(t, "Bonjour World", out)
	require.Equal(t, 2, calls)
}

func TestTranslateAllEndpointsFailFallsBackToOriginal(t *testing.T) {
	cascade, _ := newTestCascade(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	out := cascade.Translate(context.Background(), "World", "fr", "auto")
	require.Equal(t, "World", out)
}

func TestHeuristicDetect(t *testing.T) {
	require.Equal(t, "zh", heuristicDetect("你好"))
	require.Equal(t, "fr", heuristicDetect("je vous remercie"))
	require.Equal(t, "en", heuristicDetect("hello there"))
}

func TestTokenBudgetClampedBothDirections(t *testing.T) {
	require.Equal(t, 128, tokenBudget(""))
	require.Equal(t, 2048, tokenBudget(string(make([]byte, 1000))))
}
