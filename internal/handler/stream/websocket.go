package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
	chatService "github.com/onedevai/ai-chatbot/internal/service/chat"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
	"github.com/onedevai/ai-chatbot/pkg/utils"
)

// Inbound command types.
const (
	commandSubmit = "submit"
	commandDraft  = "draft"
	commandTheme  = "theme"
)

const frameError = "error"

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket mirrors the SSE feed and accepts submit, draft and theme commands.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	d, err := h.chatSvc.Dispatcher(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	store := d.Store()

	logger := hlog.FromRequest(r).With().Str("session_id", sessionID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	outbound := make(chan outgoingMessage, 16)
	snapshot := store.Snapshot()
	outbound <- outgoingMessage{Type: string(chat.EventSnapshot), SessionID: sessionID, Data: snapshot}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, sessionID, events, outbound, logger)
		cancel()
		// Unblocks the read loop when the writer stops first.
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(h.readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readWait))
		return nil
	})

	logger.Debug().Msg("websocket connected")

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		conn.SetReadDeadline(time.Now().Add(h.readWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			sendFrame(ctx, outbound, errorFrame(sessionID, "session mismatch"))
			continue
		}

		h.handleCommand(ctx, d, sessionID, msg, outbound, logger)
	}

	cancel()
	<-writerDone
}

func (h *Handler) handleCommand(ctx context.Context, d *dispatch.Dispatcher, sessionID string, msg inboundMessage, outbound chan<- outgoingMessage, logger zerolog.Logger) {
	store := d.Store()

	switch msg.Type {
	case commandDraft:
		store.SetPendingInput(msg.Text)
	case commandTheme:
		store.ToggleTheme()
	case commandSubmit:
		// The cycle runs beside the read loop so theme and draft commands stay live.
		go func() {
			if _, err := d.Submit(ctx, msg.Text); err != nil {
				sendFrame(ctx, outbound, errorFrame(sessionID, err.Error()))
			}
		}()
	default:
		logger.Debug().Str("type", msg.Type).Msg("unknown websocket command")
		sendFrame(ctx, outbound, errorFrame(sessionID, "unknown command type"))
	}
}

// writeLoop is the only goroutine writing to conn.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string, events <-chan chat.Event, outbound <-chan outgoingMessage, logger zerolog.Logger) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()

	for {
		var frame outgoingMessage
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case frame = <-outbound:
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteJSON(outgoingMessage{Type: eventEnd, SessionID: sessionID, Timestamp: time.Now().Unix()})
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			frame = eventFrame(ev)
		}

		frame.Timestamp = time.Now().Unix()
		if err := conn.WriteJSON(frame); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func eventFrame(ev chat.Event) outgoingMessage {
	frame := outgoingMessage{Type: string(ev.Type), SessionID: ev.SessionID}
	switch {
	case ev.Message != nil:
		frame.Data = ev.Message
	case ev.State != nil:
		frame.Data = ev.State
	}
	return frame
}

func errorFrame(sessionID, message string) outgoingMessage {
	return outgoingMessage{
		Type:      frameError,
		SessionID: sessionID,
		Data:      map[string]string{"message": message},
	}
}

func sendFrame(ctx context.Context, outbound chan<- outgoingMessage, frame outgoingMessage) {
	select {
	case outbound <- frame:
	case <-ctx.Done():
	}
}
