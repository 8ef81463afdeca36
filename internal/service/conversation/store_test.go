package conversation_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
	"github.com/onedevai/ai-chatbot/internal/service/conversation"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 5, 1, 14, 3, 9, 0, time.Local)
	return func() time.Time { return t0 }
}

func TestAppendUserMessageRejectsBlank(t *testing.T) {
	store := conversation.NewStore()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, ok := store.AppendUserMessage(text)
		assert.False(t, ok, "text %q", text)
	}

	state := store.Snapshot()
	assert.Empty(t, state.History)
	assert.False(t, state.InFlight)
}

func TestAppendUserMessageSetsInFlight(t *testing.T) {
	store := conversation.NewStore(conversation.WithClock(fixedClock()))
	store.SetPendingInput("  hi there ")

	msg, ok := store.AppendUserMessage("  hi there ")
	require.True(t, ok)

	assert.Equal(t, chat.SenderUser, msg.Sender)
	assert.Equal(t, "  hi there ", msg.Text)
	assert.Equal(t, "14:03:09", msg.Time)
	assert.NotEmpty(t, msg.ID)

	state := store.Snapshot()
	assert.True(t, state.InFlight)
	assert.Empty(t, state.PendingInput)
	require.Len(t, state.History, 1)
}

func TestSecondSubmitWhileInFlightIsIgnored(t *testing.T) {
	store := conversation.NewStore()

	_, ok := store.AppendUserMessage("first")
	require.True(t, ok)

	store.SetPendingInput("second")
	_, ok = store.AppendUserMessage("second")
	assert.False(t, ok)

	state := store.Snapshot()
	assert.Len(t, state.History, 1)
	assert.True(t, state.InFlight)
	assert.Equal(t, "second", state.PendingInput)
}

func TestBotAndErrorEntriesClearInFlight(t *testing.T) {
	store := conversation.NewStore()

	store.AppendUserMessage("ping")
	reply := store.AppendBotMessage("pong")
	assert.Equal(t, chat.SenderBot, reply.Sender)
	assert.False(t, reply.Error)
	assert.False(t, store.InFlight())

	store.AppendUserMessage("again")
	failed := store.AppendErrorMessage()
	assert.Equal(t, conversation.ErrorText, failed.Text)
	assert.True(t, failed.Error)
	assert.False(t, store.InFlight())

	history := store.History()
	require.Len(t, history, 4)
	assert.Equal(t, []chat.Sender{chat.SenderUser, chat.SenderBot, chat.SenderUser, chat.SenderBot},
		[]chat.Sender{history[0].Sender, history[1].Sender, history[2].Sender, history[3].Sender})
}

func TestHistoryReturnsCopy(t *testing.T) {
	store := conversation.NewStore()
	store.AppendUserMessage("ping")

	history := store.History()
	history[0].Text = "mutated"

	assert.Equal(t, "ping", store.History()[0].Text)
}

func TestToggleThemeIsIndependentOfHistory(t *testing.T) {
	store := conversation.NewStore(conversation.WithDarkMode(true))

	assert.False(t, store.ToggleTheme())
	assert.True(t, store.ToggleTheme())
	assert.Empty(t, store.History())
	assert.False(t, store.InFlight())
}

func TestConcurrentSubmitsAcceptOnlyOne(t *testing.T) {
	store := conversation.NewStore()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.AppendUserMessage("race"); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Len(t, store.History(), 1)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	store := conversation.NewStore(conversation.WithSessionID("s-1"))
	events, cancel := store.Subscribe()
	defer cancel()

	store.AppendUserMessage("ping")

	first := <-events
	require.Equal(t, chat.EventMessage, first.Type)
	assert.Equal(t, "s-1", first.SessionID)
	require.NotNil(t, first.Message)
	assert.Equal(t, "ping", first.Message.Text)

	second := <-events
	require.Equal(t, chat.EventState, second.Type)
	require.NotNil(t, second.State)
	assert.True(t, second.State.InFlight)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	store := conversation.NewStore()
	_, cancel := store.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		store.ToggleTheme()
	}

	assert.Positive(t, store.DroppedEvents())
}

func TestCancelClosesChannel(t *testing.T) {
	store := conversation.NewStore()
	events, cancel := store.Subscribe()

	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)

	store.ToggleTheme()
}
