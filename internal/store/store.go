// Package store persists push subscriptions and event service settings.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Settings is the persisted EventService configuration.
type Settings struct {
	ServiceEnabled               bool `json:"ServiceEnabled"`
	DeliveryRetryAttempts        int  `json:"DeliveryRetryAttempts"`
	DeliveryRetryIntervalSeconds int  `json:"DeliveryRetryIntervalSeconds"`
}

// Store is the subscription persistence layer.
type Store interface {
	Load(ctx context.Context) ([]subscription.Record, error)
	Save(ctx context.Context, rec subscription.Record) error
	Delete(ctx context.Context, id string) error
	// LoadConfig returns ErrNotFound when nothing has been saved yet.
	LoadConfig(ctx context.Context) (Settings, error)
	SaveConfig(ctx context.Context, s Settings) error
	Close() error
}

// Backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	RedisURL    string
	KeyPrefix   string
	DatabaseURL string
	Migrate     bool
}

// Open connects the configured backend. When the backend is unreachable it
// logs a warning and falls back to an in-memory store.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	var (
		st  Store
		err error
	)
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		st, err = NewRedis(ctx, opts.RedisURL, opts.KeyPrefix)
	case BackendPostgres:
		if opts.Migrate {
			if err = Migrate(opts.DatabaseURL); err != nil {
				break
			}
		}
		st, err = NewPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		logger.Warn("subscription store unavailable, falling back to memory; subscriptions will not survive a restart",
			slog.String("backend", opts.Backend), logging.Error(err))
		return NewMemory(), nil
	}
	logger.Info("subscription store connected", slog.String("backend", opts.Backend))
	return st, nil
}
