// Command eventd serves the Redfish EventService: push subscriptions,
// SSE and WebSocket streams fed by the event log, logging signals and
// telemetry reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/eventd/internal/config"
	"github.com/telhawk-systems/eventd/internal/eventservice"
	"github.com/telhawk-systems/eventd/internal/handlers"
	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/logtail"
	"github.com/telhawk-systems/eventd/internal/message"
	natsclient "github.com/telhawk-systems/eventd/internal/messaging/nats"
	"github.com/telhawk-systems/eventd/internal/server"
	"github.com/telhawk-systems/eventd/internal/source"
	"github.com/telhawk-systems/eventd/internal/store"
	"github.com/telhawk-systems/eventd/internal/subscription"
	"github.com/telhawk-systems/eventd/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("eventd"))
	logging.SetDefault(logger)

	if err := run(cfg, logger.Logger); err != nil {
		logger.Error("eventd failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	catalog, err := message.Default()
	if err != nil {
		return fmt.Errorf("load message registries: %w", err)
	}
	if cfg.Registry.Dir != "" {
		if err := catalog.LoadDir(cfg.Registry.Dir); err != nil {
			return fmt.Errorf("load message registries from %s: %w", cfg.Registry.Dir, err)
		}
	}

	st, err := store.Open(context.Background(), cfg.StoreOptions(), logger)
	if err != nil {
		return fmt.Errorf("open subscription store: %w", err)
	}
	defer st.Close()

	pusher := transport.New(transport.Config{
		Timeout:       cfg.Transport.Timeout,
		QueueDepth:    cfg.Transport.QueueDepth,
		SigningSecret: cfg.Transport.SigningSecret,
		Issuer:        cfg.Transport.Issuer,
	}, logger)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := eventservice.NewLoop(cfg.Events.LoopQueue, logger)
	go loop.Run(loopCtx)

	reg := eventservice.NewRegistry(eventservice.Config{
		Enabled:          cfg.Events.Enabled,
		RetryAttempts:    cfg.Events.RetryAttempts,
		RetryInterval:    cfg.Events.RetryInterval,
		MaxSubscriptions: cfg.Events.MaxSubscriptions,
		MaxStreams:       cfg.Events.MaxStreams,
	}, subscription.Deps{Transport: pusher, Catalog: catalog, Logger: logger})
	svc := eventservice.NewService(loop, reg, st, logger)

	var feeds eventservice.Feeds
	var tailer *logtail.Tailer
	if cfg.Logtail.Enabled {
		tailer = logtail.New(cfg.Logtail.Path, nil, reg, loop.Enqueue, logger)
		feeds.Log = tailer
	}

	// NATS is optional; without it the signal and metric feeds stay off and
	// health reports degraded.
	var nc *natsclient.Client
	if cfg.NATS.Enabled {
		nc, err = natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "eventd",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       cfg.NATS.Timeout,
			Username:      cfg.NATS.Username,
			Password:      cfg.NATS.Password,
			Token:         cfg.NATS.Token,
		}, logger)
		if err != nil {
			logger.Warn("NATS unavailable, signal and telemetry feeds disabled", logging.Error(err))
			nc = nil
		} else {
			feeds.Signal = source.NewSignalListener(nc, svc.SubmitSignal, logger)
			feeds.Metric = source.NewMetricListener(nc, svc.SubmitMetric, logger)
		}
	}

	ctx := context.Background()
	if err := loop.Call(ctx, func() { reg.SetFeeds(feeds) }); err != nil {
		return err
	}
	if err := svc.Restore(ctx); err != nil {
		return err
	}

	h := handlers.NewHandler(svc, catalog, logger).WithStreamBuffer(cfg.Events.StreamBuffer)
	if nc != nil {
		h = h.WithMessaging(nc)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("eventd listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Streams hold their handlers open, so close them before the server
	// waits for in-flight requests.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to close streams", logging.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", logging.Error(err))
	}
	if err := pusher.Close(shutdownCtx); err != nil {
		logger.Warn("pending deliveries abandoned", logging.Error(err))
	}

	stopLoop()
	<-loop.Done()
	if tailer != nil {
		if err := tailer.Close(); err != nil {
			logger.Warn("failed to close event log watcher", logging.Error(err))
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("failed to drain NATS", logging.Error(err))
		}
	}

	logger.Info("eventd stopped")
	return nil
}
