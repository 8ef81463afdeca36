package session

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	chatService "github.com/onedevai/ai-chatbot/internal/service/chat"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
	"github.com/onedevai/ai-chatbot/pkg/utils"
)

// Handler exposes the server-held conversations over REST.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates the session handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Route("/sessions/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.handleGetState)
		sr.Delete("/", h.handleEndSession)
		sr.Put("/draft", h.handleSetDraft)
		sr.Post("/messages", h.handleSubmit)
		sr.Post("/theme", h.handleToggleTheme)
	})
}

type textPayload struct {
	Text string `json:"text"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.ListSessions(r.Context()))
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	store, err := h.chatSvc.Store(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, store.Snapshot())
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var payload textPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, err := h.chatSvc.Store(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	store.SetPendingInput(payload.Text)
	utils.RespondJSON(w, http.StatusOK, store.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload textPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	d, err := h.chatSvc.Dispatcher(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	ex, err := d.Exchange(r.Context(), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	hlog.FromRequest(r).Debug().
		Str("session_id", sessionID).
		Bool("error_reply", ex.Reply.Error).
		Msg("exchange completed")
	utils.RespondJSON(w, http.StatusOK, ex)
}

func (h *Handler) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	store, err := h.chatSvc.Store(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"darkMode": store.ToggleTheme()})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrBlankPrompt):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
