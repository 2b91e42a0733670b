// Package eventservice owns the subscription set and fans source records out
// to matching subscribers.
package eventservice

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/logtail"
	"github.com/telhawk-systems/eventd/internal/metrics"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

var (
	ErrNotFound             = errors.New("subscription not found")
	ErrDuplicateDestination = errors.New("destination already subscribed")
	ErrDuplicateID          = errors.New("subscription id already in use")
	ErrTooManySubscriptions = errors.New("subscription limit reached")
	ErrIDExhausted          = errors.New("could not allocate a unique subscription id")
	ErrStreamRequired       = errors.New("streaming subscription needs an open stream")
)

const idAttempts = 3

// Activator is a source that is started for the first subscriber of its kind
// and stopped when the last one leaves.
type Activator interface {
	Activate() error
	Deactivate()
}

// Feeds are the sources the registry switches on demand. Nil feeds are skipped.
type Feeds struct {
	Log    Activator
	Signal Activator
	Metric Activator
}

// Config is the service-wide event configuration.
type Config struct {
	Enabled          bool
	RetryAttempts    int
	RetryInterval    time.Duration
	MaxSubscriptions int
	MaxStreams       int
}

// Registry holds every subscription. It is not safe for concurrent use; the
// Loop serializes access.
type Registry struct {
	cfg   Config
	deps  subscription.Deps
	feeds Feeds

	subs   map[string]*subscription.Subscription
	ids    []string
	counts map[subscription.FormatType]int
	stream int

	eventCounter uint64
	newID        func() string
	logger       *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, deps subscription.Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		cfg:    cfg,
		deps:   deps,
		subs:   make(map[string]*subscription.Subscription),
		counts: make(map[subscription.FormatType]int),
		newID:  uuid.NewString,
		logger: logger,
	}
}

// SetFeeds installs the on-demand sources.
func (r *Registry) SetFeeds(f Feeds) { r.feeds = f }

// Config returns the current configuration.
func (r *Registry) Config() Config { return r.cfg }

// Count returns the number of subscriptions of the given format.
func (r *Registry) Count(f subscription.FormatType) int { return r.counts[f] }

// Subscribe validates spec and adds a subscription. stream must be non-nil
// exactly for SSE and WebSocket specs.
func (r *Registry) Subscribe(spec subscription.Spec, stream subscription.Stream) (*subscription.Subscription, error) {
	return r.add("", spec, stream)
}

// Restore re-adds a persisted push subscription under its original id.
func (r *Registry) Restore(rec subscription.Record) (*subscription.Subscription, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: empty id", subscription.ErrInvalidSpec)
	}
	if _, taken := r.subs[rec.ID]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	return r.add(rec.ID, rec.Spec, nil)
}

func (r *Registry) add(id string, spec subscription.Spec, stream subscription.Stream) (*subscription.Subscription, error) {
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	if spec.IsStream() != (stream != nil) {
		return nil, ErrStreamRequired
	}

	var dest subscription.Destination
	if !spec.IsStream() {
		d, err := subscription.ParseDestination(spec.Destination)
		if err != nil {
			return nil, err
		}
		for _, s := range r.subs {
			if existing, ok := s.Destination(); ok && existing.String() == d.String() {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateDestination, spec.Destination)
			}
		}
		dest = d
	}

	if r.cfg.MaxSubscriptions > 0 && len(r.subs) >= r.cfg.MaxSubscriptions {
		return nil, ErrTooManySubscriptions
	}
	if spec.IsStream() && r.cfg.MaxStreams > 0 && r.stream >= r.cfg.MaxStreams {
		return nil, ErrTooManySubscriptions
	}

	if id == "" {
		var err error
		if id, err = r.allocateID(); err != nil {
			return nil, err
		}
	}

	var sub *subscription.Subscription
	if spec.IsStream() {
		sub = subscription.NewStream(id, spec, stream, r.deps)
		r.stream++
	} else {
		sub = subscription.NewPush(id, spec, dest, r.deps)
	}
	sub.UpdateRetryConfig(r.cfg.RetryAttempts, r.cfg.RetryInterval)

	r.subs[id] = sub
	idx, _ := slices.BinarySearch(r.ids, id)
	r.ids = slices.Insert(r.ids, idx, id)
	r.counts[spec.EventFormatType]++
	metrics.Subscriptions.WithLabelValues(string(spec.EventFormatType)).Inc()

	if r.counts[spec.EventFormatType] == 1 {
		r.activate(spec.EventFormatType)
	}

	r.logger.Info("subscription added",
		logging.SubscriptionID(id),
		slog.String("type", spec.SubscriptionType),
		slog.String("format", string(spec.EventFormatType)))
	return sub, nil
}

func (r *Registry) allocateID() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := r.newID()
		if _, taken := r.subs[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// Unsubscribe removes id, cancels its pending push retries and closes its stream.
func (r *Registry) Unsubscribe(id string) error {
	sub, ok := r.subs[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	if idx, found := slices.BinarySearch(r.ids, id); found {
		r.ids = slices.Delete(r.ids, idx, idx+1)
	}

	if sub.IsStream() {
		r.stream--
		_ = sub.Close()
	} else if r.deps.Transport != nil {
		r.deps.Transport.Cancel(id)
	}

	format := sub.Format()
	r.counts[format]--
	metrics.Subscriptions.WithLabelValues(string(format)).Dec()
	if r.counts[format] == 0 {
		r.deactivate(format)
	}

	r.logger.Info("subscription removed", logging.SubscriptionID(id))
	return nil
}

type namedFeed struct {
	name string
	feed Activator
}

func (r *Registry) activate(f subscription.FormatType) {
	for _, nf := range r.feedsFor(f) {
		if err := nf.feed.Activate(); err != nil {
			r.logger.Warn("event source could not be started, continuing without it",
				slog.String("source", nf.name), logging.Error(err))
			continue
		}
		r.logger.Info("event source started", slog.String("source", nf.name))
	}
}

func (r *Registry) deactivate(f subscription.FormatType) {
	for _, nf := range r.feedsFor(f) {
		nf.feed.Deactivate()
		r.logger.Info("event source stopped", slog.String("source", nf.name))
	}
}

// feedsFor lists the feeds serving f in a fixed order: log before signal.
func (r *Registry) feedsFor(f subscription.FormatType) []namedFeed {
	var out []namedFeed
	switch f {
	case subscription.FormatEvent:
		if r.feeds.Log != nil {
			out = append(out, namedFeed{"log", r.feeds.Log})
		}
		if r.feeds.Signal != nil {
			out = append(out, namedFeed{"signal", r.feeds.Signal})
		}
	case subscription.FormatMetricReport:
		if r.feeds.Metric != nil {
			out = append(out, namedFeed{"metric", r.feeds.Metric})
		}
	}
	return out
}

// Get returns the subscription with id.
func (r *Registry) Get(id string) (*subscription.Subscription, bool) {
	s, ok := r.subs[id]
	return s, ok
}

// List returns all subscriptions ordered by id.
func (r *Registry) List() []*subscription.Subscription {
	out := make([]*subscription.Subscription, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.subs[id])
	}
	return out
}

// SetConfig replaces the configuration and pushes retry changes to every
// subscription.
func (r *Registry) SetConfig(cfg Config) {
	retryChanged := cfg.RetryAttempts != r.cfg.RetryAttempts || cfg.RetryInterval != r.cfg.RetryInterval
	r.cfg = cfg
	if !retryChanged {
		return
	}
	for _, id := range r.ids {
		r.subs[id].UpdateRetryConfig(cfg.RetryAttempts, cfg.RetryInterval)
	}
}

// Interested reports whether log records would reach anyone.
func (r *Registry) Interested() bool {
	return r.cfg.Enabled && r.counts[subscription.FormatEvent] > 0
}

// DispatchLog fans a tailer batch out to Event subscribers.
func (r *Registry) DispatchLog(records []logtail.LogRecord) {
	events := make([]subscription.EventRecord, 0, len(records))
	for _, rec := range records {
		events = append(events, subscription.EventRecord{
			EventID:        rec.ID,
			Timestamp:      rec.Timestamp,
			MessageID:      rec.MessageID,
			RegistryPrefix: rec.RegistryName,
			MessageKey:     rec.MessageKey,
			Args:           rec.Args,
		})
	}
	r.dispatchEvents("log", events)
}

func (r *Registry) dispatchEvents(source string, events []subscription.EventRecord) int {
	if !r.cfg.Enabled {
		metrics.DispatchTotal.WithLabelValues(source, "disabled").Inc()
		return 0
	}
	delivered := 0
	for _, id := range r.ids {
		if r.subs[id].DeliverEvents(events) {
			delivered++
		}
	}
	r.recordOutcome(source, delivered)
	return delivered
}

// DispatchSignal delivers one signal-sourced event. The global event counter
// advances once for every subscriber it matches, giving each delivery its own
// EventId.
func (r *Registry) DispatchSignal(ev subscription.EventRecord) int {
	if !r.cfg.Enabled {
		metrics.DispatchTotal.WithLabelValues("signal", "disabled").Inc()
		return 0
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	delivered := 0
	for _, id := range r.ids {
		sub := r.subs[id]
		if !sub.MatchesEvent(ev) {
			continue
		}
		r.eventCounter++
		ev.EventID = strconv.FormatUint(r.eventCounter, 10)
		if sub.DeliverEvents([]subscription.EventRecord{ev}) {
			delivered++
		}
	}
	r.recordOutcome("signal", delivered)
	return delivered
}

// DispatchMetric delivers a metric report to MetricReport subscribers.
func (r *Registry) DispatchMetric(report subscription.MetricReport) int {
	if !r.cfg.Enabled || r.counts[subscription.FormatMetricReport] == 0 {
		metrics.DispatchTotal.WithLabelValues("metric", "disabled").Inc()
		return 0
	}
	delivered := 0
	for _, id := range r.ids {
		if r.subs[id].DeliverMetricReport(report) {
			delivered++
		}
	}
	r.recordOutcome("metric", delivered)
	return delivered
}

// DispatchTest sends ev to every Event subscriber regardless of filters.
func (r *Registry) DispatchTest(ev subscription.EventRecord) int {
	if !r.cfg.Enabled {
		metrics.DispatchTotal.WithLabelValues("test", "disabled").Inc()
		return 0
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	delivered := 0
	for _, id := range r.ids {
		if r.subs[id].SendTestEvent(ev) {
			delivered++
		}
	}
	r.recordOutcome("test", delivered)
	return delivered
}

func (r *Registry) recordOutcome(source string, delivered int) {
	outcome := "delivered"
	if delivered == 0 {
		outcome = "no_match"
	}
	metrics.DispatchTotal.WithLabelValues(source, outcome).Inc()
}

// CloseStreams closes every streaming subscription, used at shutdown.
func (r *Registry) CloseStreams() {
	for _, id := range slices.Clone(r.ids) {
		if r.subs[id].IsStream() {
			_ = r.Unsubscribe(id)
		}
	}
}
