package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/metrics"
)

// SSEKeepAlive is the interval between comment lines on an idle stream.
var SSEKeepAlive = 30 * time.Second

// ServeSSE writes envelopes from conn as text/event-stream until the client
// disconnects or conn is closed.
func ServeSSE(w http.ResponseWriter, r *http.Request, conn *Conn, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamsOpen.WithLabelValues(KindSSE).Inc()
	defer metrics.StreamsOpen.WithLabelValues(KindSSE).Dec()

	ticker := time.NewTicker(SSEKeepAlive)
	defer ticker.Stop()

	var id uint64
	for {
		select {
		case payload := <-conn.Payloads():
			id++
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", id, payload); err != nil {
				logger.Debug("SSE write failed", logging.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-conn.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}
