package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
	chatService "github.com/onedevai/ai-chatbot/internal/service/chat"
	"github.com/onedevai/ai-chatbot/pkg/utils"
)

const (
	defaultKeepAlive = 15 * time.Second
	eventEnd         = "end"
)

// Handler pushes conversation events to live clients over SSE and WebSocket.
type Handler struct {
	chatSvc   *chatService.Service
	upgrader  websocket.Upgrader
	keepAlive time.Duration
	pingEvery time.Duration
	readWait  time.Duration
}

// New creates the stream handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		keepAlive: defaultKeepAlive,
		pingEvery: 54 * time.Second,
		readWait:  60 * time.Second,
	}
}

// RegisterRoutes mounts the live feeds on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

// handleEvents streams a snapshot followed by every change as Server-Sent Events.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	store, err := h.chatSvc.Store(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	logger := hlog.FromRequest(r).With().Str("session_id", sessionID).Logger()

	events, cancel := store.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	snapshot := store.Snapshot()
	if err := utils.SendSSEEvent(w, flusher, string(chat.EventSnapshot), chat.Event{
		Type:      chat.EventSnapshot,
		SessionID: sessionID,
		State:     &snapshot,
	}); err != nil {
		logger.Debug().Err(err).Msg("sse client gone before snapshot")
		return
	}
	logger.Debug().Msg("sse stream opened")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("sse stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, eventEnd, map[string]string{"sessionId": sessionID})
				logger.Debug().Msg("sse stream ended with session")
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				logger.Debug().Err(err).Msg("sse write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}
