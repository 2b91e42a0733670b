package stream

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

func TestConn_Send(t *testing.T) {
	c := NewConn(KindSSE, 2)

	require.NoError(t, c.Send([]byte("a")))
	require.NoError(t, c.Send([]byte("b")))
	assert.ErrorIs(t, c.Send([]byte("c")), subscription.ErrStreamFull)

	assert.Equal(t, "a", string(<-c.Payloads()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
	assert.ErrorIs(t, c.Send([]byte("d")), ErrClosed)
}

func TestServeSSE(t *testing.T) {
	conn := NewConn(KindSSE, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeSSE(w, r, conn, logging.Nop())
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, conn.Send([]byte(`{"Id":"1"}`)))
	require.NoError(t, conn.Send([]byte(`{"Id":"2"}`)))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 6 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimRight(line, "\n"))
	}
	assert.Equal(t, []string{"id: 1", `data: {"Id":"1"}`, "", "id: 2", `data: {"Id":"2"}`, ""}, lines)

	require.NoError(t, conn.Close())
	_, err = reader.ReadString('\n')
	assert.Error(t, err, "stream ends once the subscription is closed")
}

func TestServeWebSocket(t *testing.T) {
	conn := NewConn(KindWebSocket, 8)
	served := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r)
		if err != nil {
			return
		}
		ServeWebSocket(ws, conn, logging.Nop())
		close(served)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, conn.Send([]byte(`{"Id":"1"}`)))
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.JSONEq(t, `{"Id":"1"}`, string(data))

	require.NoError(t, conn.Close())
	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("server side did not return")
	}
}

func TestServeWebSocket_PeerDisconnect(t *testing.T) {
	conn := NewConn(KindWebSocket, 8)
	served := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(w, r)
		if err != nil {
			return
		}
		ServeWebSocket(ws, conn, logging.Nop())
		close(served)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("server side did not notice the disconnect")
	}
}
