package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/onedevai/ai-chatbot/internal/config"
	"github.com/onedevai/ai-chatbot/internal/handler"
	"github.com/onedevai/ai-chatbot/internal/logging"
	"github.com/onedevai/ai-chatbot/internal/metrics"
	"github.com/onedevai/ai-chatbot/internal/service/chat"
	"github.com/onedevai/ai-chatbot/internal/service/upstream"
)

// answerer is satisfied by both upstream implementations.
type answerer interface {
	Fetch(ctx context.Context, prompt string) ([]byte, error)
	Do(ctx context.Context, prompt string) (*upstream.Response, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Init(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using process environment only")
	}

	up, err := newUpstream(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize upstream")
	}

	m := metrics.New()
	chatService := chat.NewService(up,
		chat.WithTimeout(cfg.Upstream.Timeout),
		chat.WithMetrics(m),
		chat.WithLogger(logger.With().Str("component", "dispatch").Logger()),
	)
	defer chatService.Close()

	router := handler.NewRouter(handler.Dependencies{
		Config:   cfg,
		Logger:   logger,
		ChatSvc:  chatService,
		Upstream: up,
		Metrics:  m,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("upstream_mode", cfg.Upstream.Mode).
		Str("relay_mode", cfg.Relay.Mode).
		Msg("chat server listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("chat server stopped")
}

func newUpstream(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (answerer, error) {
	if cfg.Upstream.Mode == config.UpstreamModeArk {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("model", cfg.AI.Model).Msg("using Ark chat model upstream")
		return upstream.NewArkGenerator(ctx, chatModel, cfg.AI.SystemPrompt, logger.With().Str("component", "ark").Logger())
	}

	return upstream.NewClient(cfg.Upstream.URL,
		upstream.WithMaxBodyBytes(cfg.Upstream.MaxBodyBytes),
		upstream.WithLogger(logger.With().Str("component", "upstream").Logger()),
	)
}

func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
