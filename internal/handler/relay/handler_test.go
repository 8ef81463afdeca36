package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onedevai/ai-chatbot/internal/service/upstream"
)

func setupRouter(t *testing.T, upstreamHandler http.HandlerFunc, opts ...Option) *chi.Mux {
	t.Helper()
	srv := httptest.NewServer(upstreamHandler)
	t.Cleanup(srv.Close)

	client, err := upstream.NewClient(srv.URL + "/")
	require.NoError(t, err)

	r := chi.NewRouter()
	New(client, opts...).RegisterRoutes(r)
	return r
}

func get(r http.Handler, prompt string) *httptest.ResponseRecorder {
	target := "/chat"
	if prompt != "" {
		target += "?prompt=" + url.QueryEscape(prompt)
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestRelayMissingPrompt(t *testing.T) {
	called := false
	r := setupRouter(t, func(http.ResponseWriter, *http.Request) { called = true })

	for _, prompt := range []string{"", "   "} {
		resp := get(r, prompt)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
		assert.Equal(t, "Prompt is required", decode(t, resp)["error"])
	}
	assert.False(t, called)
}

func TestRelayWrapsPlainText(t *testing.T) {
	var gotPrompt string
	r := setupRouter(t, func(w http.ResponseWriter, req *http.Request) {
		gotPrompt = req.URL.Query().Get("prompt")
		_, _ = w.Write([]byte("hello there"))
	})

	resp := get(r, "hi & bye")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "hi & bye", gotPrompt)
	assert.Equal(t, "hello there", decode(t, resp)["response"])
}

func TestRelayBracketedTextIsNotAnError(t *testing.T) {
	r := setupRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[Note] The capital of France is Paris."))
	})

	resp := get(r, "capital?")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "[Note] The capital of France is Paris.", decode(t, resp)["response"])
}

func TestRelayNormalizesNestedArray(t *testing.T) {
	r := setupRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"response":{"response":"a"}},{"response":{"response":"b"}}]`))
	})

	resp := get(r, "ping")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "a b", decode(t, resp)["response"])
}

func TestRelayPassthrough(t *testing.T) {
	r := setupRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"response":{"response":"raw"}}]`))
	}, WithPassthrough(true))

	resp := get(r, "ping")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"response":{"response":"raw"}}]`, resp.Body.String())
}

func TestRelayUpstreamStatusIsForwarded(t *testing.T) {
	r := setupRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	resp := get(r, "ping")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	assert.Equal(t, "Upstream returned status 503", decode(t, resp)["error"])
}

func TestRelayUnrecognizedShape(t *testing.T) {
	r := setupRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"nope"}`))
	})

	resp := get(r, "ping")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	assert.Equal(t, "Unable to fetch response from API.", decode(t, resp)["error"])
}

func TestRelayTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := upstream.NewClient(srv.URL)
	require.NoError(t, err)
	srv.Close()

	r := chi.NewRouter()
	New(client).RegisterRoutes(r)

	resp := get(r, "ping")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	assert.Equal(t, "Unable to fetch response from API.", decode(t, resp)["error"])
}
