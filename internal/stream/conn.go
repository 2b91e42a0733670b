// Package stream carries envelopes to clients holding an open SSE or
// WebSocket connection.
package stream

import (
	"errors"
	"sync"

	"github.com/telhawk-systems/eventd/internal/metrics"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

const (
	KindSSE       = "sse"
	KindWebSocket = "websocket"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("stream closed")

// Conn is the subscription side of a streaming connection. Send never
// blocks: when the buffer is full the payload is dropped.
type Conn struct {
	kind string
	buf  chan []byte
	done chan struct{}
	once sync.Once
}

var _ subscription.Stream = (*Conn)(nil)

// NewConn creates a connection buffer of depth payloads.
func NewConn(kind string, depth int) *Conn {
	if depth <= 0 {
		depth = 64
	}
	return &Conn{
		kind: kind,
		buf:  make(chan []byte, depth),
		done: make(chan struct{}),
	}
}

func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.buf <- payload:
		return nil
	default:
		metrics.StreamDropped.WithLabelValues(c.kind).Inc()
		return subscription.ErrStreamFull
	}
}

// Close ends the connection; the serving goroutine returns.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Done is closed by Close.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Payloads yields queued envelopes.
func (c *Conn) Payloads() <-chan []byte { return c.buf }
