// Package dispatch runs the request/response cycle behind every accepted prompt.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/onedevai/ai-chatbot/internal/metrics"
	"github.com/onedevai/ai-chatbot/internal/model/chat"
	"github.com/onedevai/ai-chatbot/internal/service/conversation"
	"github.com/onedevai/ai-chatbot/internal/service/reply"
)

var (
	ErrBlankPrompt = errors.New("prompt is blank")
	ErrInFlight    = errors.New("a request is already in flight")
)

// Fetcher performs the single outbound call for a prompt and returns the raw reply.
type Fetcher interface {
	Fetch(ctx context.Context, prompt string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, prompt string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	return f(ctx, prompt)
}

// Exchange is the pair of entries produced by one cycle.
type Exchange struct {
	User  chat.Message `json:"user"`
	Reply chat.Message `json:"reply"`
}

// Dispatcher drives one conversation store.
type Dispatcher struct {
	store   *conversation.Store
	fetcher Fetcher
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds the outbound call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(dp *Dispatcher) { dp.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// New binds a fetcher to a store.
func New(store *conversation.Store, fetcher Fetcher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		fetcher: fetcher,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the conversation the dispatcher writes to.
func (d *Dispatcher) Store() *conversation.Store {
	return d.store
}

// Submit runs a cycle and returns the bot entry it appended.
func (d *Dispatcher) Submit(ctx context.Context, prompt string) (chat.Message, error) {
	ex, err := d.Exchange(ctx, prompt)
	if err != nil {
		return chat.Message{}, err
	}
	return ex.Reply, nil
}

// Exchange runs a cycle and returns both appended entries. A blank prompt or
// an outstanding request rejects the call without touching the history.
func (d *Dispatcher) Exchange(ctx context.Context, prompt string) (Exchange, error) {
	if strings.TrimSpace(prompt) == "" {
		d.metrics.ObserveCycle(metrics.OutcomeRejected, 0)
		return Exchange{}, ErrBlankPrompt
	}

	user, ok := d.store.AppendUserMessage(prompt)
	if !ok {
		d.metrics.ObserveCycle(metrics.OutcomeRejected, 0)
		return Exchange{}, ErrInFlight
	}

	return Exchange{User: user, Reply: d.complete(ctx, user)}, nil
}

// complete appends exactly one bot entry for user, whatever happens below it.
func (d *Dispatcher) complete(ctx context.Context, user chat.Message) (out chat.Message) {
	start := time.Now()
	logger := d.logger.With().Str("message_id", user.ID).Logger()

	var (
		text    string
		failure error
	)
	defer func() {
		if r := recover(); r != nil {
			failure = errors.Errorf("dispatch panic: %v", r)
		}

		took := time.Since(start)
		if failure != nil {
			out = d.store.AppendErrorMessage()
			d.metrics.ObserveCycle(metrics.OutcomeError, took)
			logger.Error().Err(failure).Dur("took", took).Msg("chat cycle failed")
			return
		}

		out = d.store.AppendBotMessage(text)
		d.metrics.ObserveCycle(metrics.OutcomeReply, took)
		logger.Info().Dur("took", took).Int("length", len(text)).Msg("chat cycle completed")
	}()

	// The caller going away must not cancel an outstanding call.
	callCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}

	body, err := d.fetcher.Fetch(callCtx, user.Text)
	if err != nil {
		failure = errors.Wrap(err, "fetch reply")
		return
	}

	text, err = reply.Normalize(body)
	if err != nil {
		failure = errors.Wrap(err, "normalize reply")
	}
	return
}
