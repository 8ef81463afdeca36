package relay

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/onedevai/ai-chatbot/internal/metrics"
	"github.com/onedevai/ai-chatbot/internal/service/reply"
	"github.com/onedevai/ai-chatbot/internal/service/upstream"
	"github.com/onedevai/ai-chatbot/pkg/utils"
)

const (
	msgPromptRequired = "Prompt is required"
	msgFetchFailed    = "Unable to fetch response from API."
)

// Upstream answers a prompt with the raw inference reply.
type Upstream interface {
	Do(ctx context.Context, prompt string) (*upstream.Response, error)
}

// Handler serves GET /chat?prompt=.
type Handler struct {
	upstream    Upstream
	passthrough bool
	timeout     time.Duration
	metrics     *metrics.Metrics
}

// Option customises the Handler.
type Option func(*Handler)

// WithPassthrough returns upstream bodies unchanged instead of {"response": ...}.
func WithPassthrough(on bool) Option {
	return func(h *Handler) { h.passthrough = on }
}

// WithTimeout bounds the upstream call.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New creates the relay handler.
func New(up Upstream, opts ...Option) *Handler {
	h := &Handler{upstream: up}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the relay on r. Extra middleware applies to the relay only.
func (h *Handler) RegisterRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.With(middlewares...).Get("/chat", h.handleChat)
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get(upstream.PromptParam)
	if strings.TrimSpace(prompt) == "" {
		h.metrics.ObserveRelay(http.StatusBadRequest, 0)
		utils.RespondError(w, http.StatusBadRequest, msgPromptRequired)
		return
	}

	logger := hlog.FromRequest(r)

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := h.upstream.Do(ctx, prompt)
	took := time.Since(start)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			logger.Warn().Int("upstream_status", statusErr.StatusCode).Msg("upstream rejected prompt")
			status := statusErr.StatusCode
			if status < 400 || status > 599 {
				status = http.StatusBadGateway
			}
			h.fail(w, status, fmt.Sprintf("Upstream returned status %d", statusErr.StatusCode), took)
			return
		}
		logger.Error().Err(err).Msg("upstream call failed")
		h.fail(w, http.StatusInternalServerError, msgFetchFailed, took)
		return
	}

	if h.passthrough {
		contentType := resp.ContentType
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(resp.Body); err != nil {
			logger.Warn().Err(err).Msg("failed to write relay body")
		}
		h.metrics.ObserveRelay(http.StatusOK, took)
		return
	}

	text, err := reply.Normalize(resp.Body)
	if err != nil {
		logger.Error().Err(err).Int("bytes", len(resp.Body)).Msg("unusable upstream reply")
		h.fail(w, http.StatusInternalServerError, msgFetchFailed, took)
		return
	}

	h.metrics.ObserveRelay(http.StatusOK, took)
	utils.RespondJSON(w, http.StatusOK, chatResponse{Response: text})
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string, took time.Duration) {
	h.metrics.ObserveRelay(status, took)
	utils.RespondError(w, status, msg)
}
