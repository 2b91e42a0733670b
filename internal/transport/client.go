// Package transport delivers push envelopes over HTTP with per-subscription
// queues and named retry policies.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/metrics"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent delivery failure")

// Config tunes the push client.
type Config struct {
	Timeout       time.Duration
	QueueDepth    int
	SigningSecret string
	Issuer        string
	UserAgent     string
	// MinRetryInterval is the shortest wait between attempts, whatever the
	// policy says.
	MinRetryInterval time.Duration
}

// DefaultMinRetryInterval is used when Config.MinRetryInterval is unset.
const DefaultMinRetryInterval = time.Second

type policy struct {
	attempts int
	interval time.Duration
}

// Client implements subscription.Transport. Deliveries for one subscription
// are sent in order by a dedicated worker; different subscriptions never
// block each other.
type Client struct {
	cfg    Config
	http   *http.Client
	signer *Signer
	logger *slog.Logger

	mu       sync.Mutex
	policies map[string]policy
	queues   map[string]*queue
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queue struct {
	id     string
	ch     chan subscription.Delivery
	ctx    context.Context
	cancel context.CancelFunc
	resume chan struct{}

	suspended atomic.Bool
}

var _ subscription.Transport = (*Client)(nil)

// New constructs a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.MinRetryInterval <= 0 {
		cfg.MinRetryInterval = DefaultMinRetryInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "eventd/1.0"
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		policies: make(map[string]policy),
		queues:   make(map[string]*queue),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.SigningSecret != "" {
		c.signer = NewSigner(cfg.SigningSecret, cfg.Issuer, 0)
	}
	return c
}

// Submit queues d without blocking. A full queue drops the delivery.
func (c *Client) Submit(d subscription.Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		metrics.TransportDropped.WithLabelValues("closed").Inc()
		return
	}
	q, ok := c.queues[d.SubscriptionID]
	if !ok {
		q = c.startQueue(d.SubscriptionID)
	}
	select {
	case q.ch <- d:
	default:
		metrics.TransportDropped.WithLabelValues("queue_full").Inc()
		c.logger.Warn("push queue full, dropping event",
			logging.SubscriptionID(d.SubscriptionID), logging.Destination(d.URL))
	}
}

// startQueue must be called with c.mu held.
func (c *Client) startQueue(id string) *queue {
	ctx, cancel := context.WithCancel(c.ctx)
	q := &queue{
		id:     id,
		ch:     make(chan subscription.Delivery, c.cfg.QueueDepth),
		ctx:    ctx,
		cancel: cancel,
		resume: make(chan struct{}, 1),
	}
	c.queues[id] = q
	c.wg.Add(1)
	go c.worker(q)
	return q
}

// UpdateRetryPolicy sets the parameters for a named policy and wakes any
// subscription suspended under it.
func (c *Client) UpdateRetryPolicy(name string, attempts int, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[name] = policy{attempts: attempts, interval: interval}
	for _, q := range c.queues {
		select {
		case q.resume <- struct{}{}:
		default:
		}
	}
}

// Cancel drops every pending and in-flight delivery for subscriptionID.
func (c *Client) Cancel(subscriptionID string) {
	c.mu.Lock()
	q, ok := c.queues[subscriptionID]
	delete(c.queues, subscriptionID)
	c.mu.Unlock()
	if ok {
		q.cancel()
	}
}

// Close stops all workers and waits for them up to ctx.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Suspended reports whether deliveries for subscriptionID are parked by the
// SuspendRetries policy.
func (c *Client) Suspended(subscriptionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[subscriptionID]
	return ok && q.suspended.Load()
}

func (c *Client) policyFor(name string) policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policies[name]
}

func (c *Client) worker(q *queue) {
	defer c.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case d := <-q.ch:
			c.deliver(q, d)
		}
	}
}

// deliver runs d through its retry policy.
func (c *Client) deliver(q *queue, d subscription.Delivery) {
	logger := c.logger.With(logging.SubscriptionID(d.SubscriptionID), logging.Destination(d.URL), logging.Policy(d.RetryPolicy))
	for {
		err := c.retry(q.ctx, d)
		if err == nil || q.ctx.Err() != nil {
			return
		}
		if errors.Is(err, errPermanent) || d.RetryPolicy != subscription.PolicySuspendRetries {
			metrics.TransportDropped.WithLabelValues("retries_exhausted").Inc()
			logger.Warn("giving up on event delivery", logging.Error(err))
			return
		}

		logger.Warn("event delivery suspended until the retry policy changes", logging.Error(err))
		select {
		case <-q.resume:
		default:
		}
		q.suspended.Store(true)
		select {
		case <-q.resume:
			q.suspended.Store(false)
			logger.Info("resuming suspended event delivery")
		case <-q.ctx.Done():
			return
		}
	}
}

func (c *Client) retry(ctx context.Context, d subscription.Delivery) error {
	p := c.policyFor(d.RetryPolicy)
	interval := p.interval
	if interval < c.cfg.MinRetryInterval {
		interval = c.cfg.MinRetryInterval
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if d.RetryPolicy != subscription.PolicyRetryForever {
		retries := p.attempts - 1
		if retries < 0 {
			retries = 0
		}
		b = backoff.WithMaxRetries(b, uint64(retries))
	}
	b = backoff.WithContext(b, ctx)

	op := func() error { return c.attempt(ctx, d) }
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("push attempt failed, retrying",
			logging.SubscriptionID(d.SubscriptionID), logging.Error(err), slog.Duration("wait", wait))
	}
	return backoff.RetryNotify(op, b, notify)
}

// attempt sends one request. Client errors other than 408 and 429 are
// permanent.
func (c *Client) attempt(ctx context.Context, d subscription.Delivery) error {
	method := d.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: build request: %v", errPermanent, err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if c.signer != nil && req.Header.Get("Authorization") == "" {
		token, err := c.signer.Token(d.SubscriptionID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: sign request: %v", errPermanent, err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.TransportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransportAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.TransportAttempts.WithLabelValues("success").Inc()
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests:
		metrics.TransportAttempts.WithLabelValues("rejected").Inc()
		return backoff.Permanent(fmt.Errorf("%w: receiver returned status %d", errPermanent, resp.StatusCode))
	default:
		metrics.TransportAttempts.WithLabelValues("failure").Inc()
		return fmt.Errorf("receiver returned status %d", resp.StatusCode)
	}
}
