package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
	chatservice "github.com/onedevai/ai-chatbot/internal/service/chat"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
)

func setupServer(t *testing.T) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(dispatch.FetcherFunc(func(context.Context, string) ([]byte, error) {
		return []byte(`{"response":"pong"}`), nil
	}))

	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc
}

type sseEvent struct {
	name string
	data chat.Event
}

func readSSE(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
		case line == "" && ev.name != "":
			return ev
		}
	}
}

func TestEventsUnknownSession(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/sessions/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestEventsStreamSnapshotThenChanges(t *testing.T) {
	srv, chatSvc := setupServer(t)
	ctx := context.Background()

	session, err := chatSvc.CreateSession(ctx)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sessions/" + session.ID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readSSE(t, reader)
	assert.Equal(t, "snapshot", first.name)
	require.NotNil(t, first.data.State)
	assert.Empty(t, first.data.State.History)

	d, err := chatSvc.Dispatcher(ctx, session.ID)
	require.NoError(t, err)
	_, err = d.Submit(ctx, "ping")
	require.NoError(t, err)

	var messages []string
	for len(messages) < 2 {
		ev := readSSE(t, reader)
		if ev.name == "message" {
			require.NotNil(t, ev.data.Message)
			messages = append(messages, ev.data.Message.Text)
		}
	}
	assert.Equal(t, []string{"ping", "pong"}, messages)

	require.NoError(t, chatSvc.EndSession(ctx, session.ID))
	for {
		ev := readSSE(t, reader)
		if ev.name == "end" {
			break
		}
	}
}

func dialSession(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == want {
			return f
		}
	}
}

func TestWebSocketSubmitAndTheme(t *testing.T) {
	srv, chatSvc := setupServer(t)
	ctx := context.Background()

	session, err := chatSvc.CreateSession(ctx)
	require.NoError(t, err)

	conn := dialSession(t, srv, session.ID)
	readUntil(t, conn, "snapshot")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "submit", "text": "ping"}))

	var texts []string
	for len(texts) < 2 {
		f := readUntil(t, conn, "message")
		var msg chat.Message
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		texts = append(texts, msg.Text)
	}
	assert.Equal(t, []string{"ping", "pong"}, texts)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "theme"}))
	for {
		f := readUntil(t, conn, "state")
		var state chat.State
		require.NoError(t, json.Unmarshal(f.Data, &state))
		if state.DarkMode {
			break
		}
	}

	store, err := chatSvc.Store(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, store.DarkMode())
	assert.Len(t, store.History(), 2)
}

func TestWebSocketRejectsBlankSubmit(t *testing.T) {
	srv, chatSvc := setupServer(t)
	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	conn := dialSession(t, srv, session.ID)
	readUntil(t, conn, "snapshot")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "submit", "text": "  "}))
	f := readUntil(t, conn, "error")
	assert.Contains(t, string(f.Data), "prompt is blank")
}

func TestWebSocketUnknownCommand(t *testing.T) {
	srv, chatSvc := setupServer(t)
	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	conn := dialSession(t, srv, session.ID)
	readUntil(t, conn, "snapshot")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	f := readUntil(t, conn, "error")
	assert.Contains(t, string(f.Data), "unknown command type")
}
