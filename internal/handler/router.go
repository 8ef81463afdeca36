package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/onedevai/ai-chatbot/internal/config"
	"github.com/onedevai/ai-chatbot/internal/handler/relay"
	"github.com/onedevai/ai-chatbot/internal/handler/session"
	"github.com/onedevai/ai-chatbot/internal/handler/stream"
	"github.com/onedevai/ai-chatbot/internal/logging"
	"github.com/onedevai/ai-chatbot/internal/metrics"
	middlewarePkg "github.com/onedevai/ai-chatbot/internal/middleware"
	chatService "github.com/onedevai/ai-chatbot/internal/service/chat"
	"github.com/onedevai/ai-chatbot/pkg/utils"
)

// Dependencies bundles what the router wires into handlers.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	ChatSvc  *chatService.Service
	Upstream relay.Upstream
	Metrics  *metrics.Metrics
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(logging.AccessLog(deps.Logger)...)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.Config.Server.AllowedOrigins))

	relayHandler := relay.New(deps.Upstream,
		relay.WithPassthrough(deps.Config.Relay.Mode == config.RelayModePassthrough),
		relay.WithTimeout(deps.Config.Upstream.Timeout),
		relay.WithMetrics(deps.Metrics),
	)
	sessionHandler := session.New(deps.ChatSvc)
	streamHandler := stream.New(deps.ChatSvc)

	var relayLimits []func(http.Handler) http.Handler
	if deps.Config.Relay.RateLimit > 0 {
		limiter := middlewarePkg.NewRateLimiter(deps.Config.Relay.RateLimit, deps.Config.Relay.RateBurst, deps.Metrics)
		relayLimits = append(relayLimits, limiter.Handler)
	}

	r.Route("/api", func(api chi.Router) {
		relayHandler.RegisterRoutes(api, relayLimits...)
		sessionHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"upstream": deps.Config.Upstream.Mode,
			"sessions": len(deps.ChatSvc.ListSessions(req.Context())),
		})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	return r
}
