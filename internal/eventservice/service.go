package eventservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/store"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// Service is the concurrency-safe front of the registry. Every call is
// serialized through the Loop; persistence happens after the registry
// accepts a change.
type Service struct {
	loop   *Loop
	reg    *Registry
	store  store.Store
	logger *slog.Logger
}

// ConfigPatch carries the writable EventService properties; nil fields are
// left unchanged.
type ConfigPatch struct {
	Enabled       *bool
	RetryAttempts *int
	RetryInterval *time.Duration
}

func NewService(loop *Loop, reg *Registry, st store.Store, logger *slog.Logger) *Service {
	if st == nil {
		st = store.NewMemory()
	}
	return &Service{loop: loop, reg: reg, store: st, logger: logger}
}

// Loop returns the loop the service runs on.
func (s *Service) Loop() *Loop { return s.loop }

// Restore loads persisted settings and push subscriptions. Records that no
// longer validate are logged and skipped.
func (s *Service) Restore(ctx context.Context) error {
	settings, err := s.store.LoadConfig(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load event service config: %w", err)
	default:
		if err := s.loop.Call(ctx, func() {
			cfg := s.reg.Config()
			cfg.Enabled = settings.ServiceEnabled
			cfg.RetryAttempts = settings.DeliveryRetryAttempts
			cfg.RetryInterval = time.Duration(settings.DeliveryRetryIntervalSeconds) * time.Second
			s.reg.SetConfig(cfg)
		}); err != nil {
			return err
		}
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	restored := 0
	for _, rec := range records {
		var addErr error
		if err := s.loop.Call(ctx, func() { _, addErr = s.reg.Restore(rec) }); err != nil {
			return err
		}
		if addErr != nil {
			s.logger.Warn("skipping persisted subscription", logging.SubscriptionID(rec.ID), logging.Error(addErr))
			continue
		}
		restored++
	}
	s.logger.Info("subscriptions restored", logging.Count(restored))
	return nil
}

// Subscribe creates a push subscription and persists it. A persistence
// failure is logged; the subscription stays active for this process.
func (s *Service) Subscribe(ctx context.Context, spec subscription.Spec) (subscription.Record, error) {
	var (
		rec    subscription.Record
		subErr error
	)
	err := s.loop.Call(ctx, func() {
		sub, err := s.reg.Subscribe(spec, nil)
		if err != nil {
			subErr = err
			return
		}
		rec = sub.Record()
	})
	if err != nil {
		return subscription.Record{}, err
	}
	if subErr != nil {
		return subscription.Record{}, subErr
	}
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error("failed to persist subscription", logging.SubscriptionID(rec.ID), logging.Error(err))
	}
	return rec, nil
}

// OpenStream registers a streaming subscription. It is never persisted.
func (s *Service) OpenStream(ctx context.Context, spec subscription.Spec, stream subscription.Stream) (string, error) {
	var (
		id     string
		subErr error
	)
	err := s.loop.Call(ctx, func() {
		sub, err := s.reg.Subscribe(spec, stream)
		if err != nil {
			subErr = err
			return
		}
		id = sub.ID()
	})
	if err != nil {
		return "", err
	}
	return id, subErr
}

// Unsubscribe removes a subscription and its persisted record.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	var (
		unsubErr error
		stream   bool
	)
	err := s.loop.Call(ctx, func() {
		if sub, ok := s.reg.Get(id); ok {
			stream = sub.IsStream()
		}
		unsubErr = s.reg.Unsubscribe(id)
	})
	if err != nil {
		return err
	}
	if unsubErr != nil {
		return unsubErr
	}
	if !stream {
		if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to delete persisted subscription", logging.SubscriptionID(id), logging.Error(err))
		}
	}
	return nil
}

// CloseStream drops a streaming subscription whose connection went away.
func (s *Service) CloseStream(id string) {
	if !s.loop.Post(func() { _ = s.reg.Unsubscribe(id) }) {
		s.logger.Warn("could not schedule stream removal", logging.SubscriptionID(id))
	}
}

// List returns every subscription.
func (s *Service) List(ctx context.Context) ([]subscription.Record, error) {
	var out []subscription.Record
	err := s.loop.Call(ctx, func() {
		subs := s.reg.List()
		out = make([]subscription.Record, 0, len(subs))
		for _, sub := range subs {
			out = append(out, sub.Record())
		}
	})
	return out, err
}

// Get returns one subscription.
func (s *Service) Get(ctx context.Context, id string) (subscription.Record, error) {
	var (
		rec   subscription.Record
		found bool
	)
	if err := s.loop.Call(ctx, func() {
		var sub *subscription.Subscription
		if sub, found = s.reg.Get(id); found {
			rec = sub.Record()
		}
	}); err != nil {
		return subscription.Record{}, err
	}
	if !found {
		return subscription.Record{}, ErrNotFound
	}
	return rec, nil
}

// Config returns the current configuration.
func (s *Service) Config(ctx context.Context) (Config, error) {
	var cfg Config
	err := s.loop.Call(ctx, func() { cfg = s.reg.Config() })
	return cfg, err
}

// SetConfig applies patch, pushes retry changes to subscribers and persists
// the result.
func (s *Service) SetConfig(ctx context.Context, patch ConfigPatch) (Config, error) {
	var cfg Config
	err := s.loop.Call(ctx, func() {
		cfg = s.reg.Config()
		if patch.Enabled != nil {
			cfg.Enabled = *patch.Enabled
		}
		if patch.RetryAttempts != nil {
			cfg.RetryAttempts = *patch.RetryAttempts
		}
		if patch.RetryInterval != nil {
			cfg.RetryInterval = *patch.RetryInterval
		}
		s.reg.SetConfig(cfg)
	})
	if err != nil {
		return Config{}, err
	}
	settings := store.Settings{
		ServiceEnabled:               cfg.Enabled,
		DeliveryRetryAttempts:        cfg.RetryAttempts,
		DeliveryRetryIntervalSeconds: int(cfg.RetryInterval / time.Second),
	}
	if err := s.store.SaveConfig(ctx, settings); err != nil {
		s.logger.Error("failed to persist event service config", logging.Error(err))
	}
	s.logger.Info("event service config updated",
		slog.Bool("enabled", cfg.Enabled),
		slog.Int("retry_attempts", cfg.RetryAttempts),
		slog.Duration("retry_interval", cfg.RetryInterval))
	return cfg, nil
}

// SubmitSignal queues a signal-sourced event for dispatch.
func (s *Service) SubmitSignal(ev subscription.EventRecord) bool {
	return s.loop.Post(func() { s.reg.DispatchSignal(ev) })
}

// SubmitMetric queues a metric report for dispatch.
func (s *Service) SubmitMetric(report subscription.MetricReport) bool {
	return s.loop.Post(func() { s.reg.DispatchMetric(report) })
}

// SubmitTestEvent sends ev to every Event subscriber and reports how many
// envelopes went out.
func (s *Service) SubmitTestEvent(ctx context.Context, ev subscription.EventRecord) (int, error) {
	var n int
	err := s.loop.Call(ctx, func() { n = s.reg.DispatchTest(ev) })
	return n, err
}

// Shutdown closes open streams. Call it before cancelling the loop context.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.loop.Call(ctx, s.reg.CloseStreams)
}
