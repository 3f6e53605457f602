package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusocial/internal/events"
	social_errors "edusocial/pkg/errors"
)

type fakeServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs := &fakeServer{conns: make(chan *websocket.Conn, 8)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("no socket connection accepted")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) events.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame events.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func newTestClient(t *testing.T, fs *fakeServer, encrypted string) *Client {
	t.Helper()
	url, err := EndpointURL(fs.URL, "/chat")
	require.NoError(t, err)
	c := NewClient(Options{
		URL:               url,
		Namespace:         "/chat",
		EncryptedUser:     encrypted,
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectAttempts: 5,
		DialTimeout:       time.Second,
	}, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEndpointURL(t *testing.T) {
	got, err := EndpointURL("https://api.example.com/", "/friend")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/friend", got)

	got, err = EndpointURL("http://localhost:5000", "chat")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/chat", got)

	_, err = EndpointURL("ftp://x", "chat")
	assert.Error(t, err)
}

func TestClientAuthenticatesAndJoins(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "blob")

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()), "connect is idempotent")
	conn := fs.accept(t)

	auth := readFrame(t, conn)
	assert.Equal(t, events.EventAuthenticate, auth.Event)
	assert.JSONEq(t, `{"encryptedData":"blob"}`, string(auth.Data))

	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.JoinRoom(12))
	join := readFrame(t, conn)
	assert.Equal(t, events.EventJoinRoom, join.Event)
	assert.JSONEq(t, `{"room_id":12}`, string(join.Data))

	require.NoError(t, c.LeaveRoom(12))
	assert.Equal(t, events.EventLeaveRoom, readFrame(t, conn).Event)
}

func TestClientDispatchesWrappedPayloads(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")

	got := make(chan events.MessageReceived, 1)
	unsubscribe := OnMessageReceived(c, func(ev events.MessageReceived) { got <- ev })
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	conn := fs.accept(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"receive_message","data":{"data":{"message_id":5,"room_id":3,"sender_id":9,"content":"hi"}}}`)))

	select {
	case ev := <-got:
		assert.Equal(t, int64(5), ev.MessageID)
		assert.Equal(t, int64(3), ev.RoomID)
		assert.Equal(t, "hi", ev.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("message not dispatched")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs, "")

	var mu sync.Mutex
	var states []bool
	c.OnConnectionChange(func(connected bool) {
		mu.Lock()
		states = append(states, connected)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	first := fs.accept(t)
	require.NoError(t, first.Close())

	second := fs.accept(t)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []bool{true, false, true}, states[:3])
	mu.Unlock()

	require.NoError(t, c.JoinRoom(1))
	assert.Equal(t, events.EventJoinRoom, readFrame(t, second).Event)
}

func TestClientEmitWithoutConnection(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/chat"}, nil)
	assert.ErrorIs(t, c.JoinRoom(1), social_errors.ErrNotConnected)
	assert.False(t, c.Connected())
	require.NoError(t, c.Close())
	assert.Error(t, c.Connect(context.Background()))
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	first := d.Subscribe("e", func(json.RawMessage) { calls = append(calls, "first") })
	d.Subscribe("e", func(json.RawMessage) { calls = append(calls, "second") })

	assert.Equal(t, 2, d.Dispatch("e", nil))
	first()
	first()
	assert.Equal(t, 1, d.Dispatch("e", nil))
	assert.Equal(t, "first,second,second", strings.Join(calls, ","))
}
