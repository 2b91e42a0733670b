package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Upgrader upgrades event WebSocket requests.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// ServeWebSocket pumps envelopes from conn to ws until either side goes
// away. It closes ws before returning.
func ServeWebSocket(ws *websocket.Conn, conn *Conn, logger *slog.Logger) {
	metrics.StreamsOpen.WithLabelValues(KindWebSocket).Inc()
	defer metrics.StreamsOpen.WithLabelValues(KindWebSocket).Dec()

	peerGone := make(chan struct{})
	go readPump(ws, peerGone)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case payload := <-conn.Payloads():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("websocket write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription closed"))
			return
		case <-peerGone:
			return
		}
	}
}

// readPump discards client messages and reports when the peer disconnects.
func readPump(ws *websocket.Conn, peerGone chan<- struct{}) {
	defer close(peerGone)
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Upgrade is a convenience wrapper around Upgrader.Upgrade.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return Upgrader.Upgrade(w, r, nil)
}
