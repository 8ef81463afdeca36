package dispatch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onedevai/ai-chatbot/internal/metrics"
	"github.com/onedevai/ai-chatbot/internal/model/chat"
	"github.com/onedevai/ai-chatbot/internal/service/conversation"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
	"github.com/onedevai/ai-chatbot/internal/service/upstream"
)

func relay(t *testing.T, status int, body string, opts ...upstream.ClientOption) *upstream.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := upstream.NewClient(srv.URL+"/api/chat", opts...)
	require.NoError(t, err)
	return client
}

type entry struct {
	Sender chat.Sender
	Text   string
}

func entries(history []chat.Message) []entry {
	out := make([]entry, 0, len(history))
	for _, msg := range history {
		out = append(out, entry{Sender: msg.Sender, Text: msg.Text})
	}
	return out
}

func TestSubmitSuccessfulRelay(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, relay(t, http.StatusOK, `{"response":"pong"}`), dispatch.WithMetrics(metrics.New()))

	got, err := d.Submit(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got.Text)

	assert.Equal(t, []entry{
		{Sender: chat.SenderUser, Text: "ping"},
		{Sender: chat.SenderBot, Text: "pong"},
	}, entries(store.History()))
	assert.False(t, store.InFlight())
}

func TestSubmitFailingRelay(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, relay(t, http.StatusInternalServerError, `{"error":"Unable to fetch response from API."}`))

	got, err := d.Submit(context.Background(), "ping")
	require.NoError(t, err)
	assert.True(t, got.Error)

	assert.Equal(t, []entry{
		{Sender: chat.SenderUser, Text: "ping"},
		{Sender: chat.SenderBot, Text: conversation.ErrorText},
	}, entries(store.History()))
	assert.False(t, store.InFlight())
}

func TestSubmitUnrecognizedShapeBecomesErrorEntry(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, relay(t, http.StatusOK, `{"answer":"pong"}`))

	got, err := d.Submit(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, conversation.ErrorText, got.Text)
}

func TestSubmitOversizedReplyBecomesErrorEntry(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, relay(t, http.StatusOK, "a reply that will not fit", upstream.WithMaxBodyBytes(8)))

	got, err := d.Submit(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, conversation.ErrorText, got.Text)
	assert.Len(t, store.History(), 2)
}

func TestSubmitBlankPrompt(t *testing.T) {
	store := conversation.NewStore()
	called := false
	d := dispatch.New(store, dispatch.FetcherFunc(func(context.Context, string) ([]byte, error) {
		called = true
		return nil, nil
	}))

	_, err := d.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, dispatch.ErrBlankPrompt)
	assert.False(t, called)
	assert.Empty(t, store.History())
	assert.False(t, store.InFlight())
}

func TestSubmitWhileInFlightIsRejected(t *testing.T) {
	store := conversation.NewStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	d := dispatch.New(store, dispatch.FetcherFunc(func(context.Context, string) ([]byte, error) {
		close(entered)
		<-release
		return []byte("done"), nil
	}))

	done := make(chan chat.Message, 1)
	go func() {
		msg, _ := d.Submit(context.Background(), "first")
		done <- msg
	}()

	<-entered
	assert.True(t, store.InFlight())

	_, err := d.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, dispatch.ErrInFlight)
	assert.Len(t, store.History(), 1)

	close(release)
	msg := <-done
	assert.Equal(t, "done", msg.Text)
	assert.Len(t, store.History(), 2)
	assert.False(t, store.InFlight())
}

func TestEachCycleAddsExactlyTwoEntries(t *testing.T) {
	store := conversation.NewStore()
	calls := 0
	d := dispatch.New(store, dispatch.FetcherFunc(func(context.Context, string) ([]byte, error) {
		calls++
		if calls%2 == 0 {
			return nil, errors.New("boom")
		}
		return []byte(`[{"response":{"response":"a"}},{"response":{"response":"b"}}]`), nil
	}))

	for i := 1; i <= 4; i++ {
		_, err := d.Submit(context.Background(), "again")
		require.NoError(t, err)
		assert.Len(t, store.History(), 2*i)
	}

	history := store.History()
	assert.Equal(t, "a b", history[1].Text)
	assert.Equal(t, conversation.ErrorText, history[3].Text)
}

func TestPanicInFetcherStillCompletes(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, dispatch.FetcherFunc(func(context.Context, string) ([]byte, error) {
		panic("fetcher exploded")
	}))

	got, err := d.Submit(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, conversation.ErrorText, got.Text)
	assert.False(t, store.InFlight())
	assert.Len(t, store.History(), 2)
}

func TestCallerCancellationDoesNotAbortCall(t *testing.T) {
	store := conversation.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	d := dispatch.New(store, dispatch.FetcherFunc(func(callCtx context.Context, _ string) ([]byte, error) {
		cancel()
		if callCtx.Err() != nil {
			return nil, callCtx.Err()
		}
		return []byte("still here"), nil
	}))

	got, err := d.Submit(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "still here", got.Text)
}

func TestTimeoutBoundsCall(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, dispatch.FetcherFunc(func(callCtx context.Context, _ string) ([]byte, error) {
		<-callCtx.Done()
		return nil, callCtx.Err()
	}), dispatch.WithTimeout(20*time.Millisecond))

	got, err := d.Submit(context.Background(), "ping")
	require.NoError(t, err)
	assert.True(t, got.Error)
}

func TestExchangeReturnsBothEntries(t *testing.T) {
	store := conversation.NewStore()
	d := dispatch.New(store, dispatch.FetcherFunc(func(_ context.Context, prompt string) ([]byte, error) {
		return []byte(`"echo: ` + prompt + `"`), nil
	}))

	ex, err := d.Exchange(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", ex.User.Text)
	assert.Equal(t, "echo: hi", ex.Reply.Text)
	assert.Equal(t, store.History(), []chat.Message{ex.User, ex.Reply})
}
