// Command eventgen feeds fabricated events into a running eventd, either by
// appending lines to the event log it tails or by publishing signals and
// metric reports on NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/telhawk-systems/eventd/internal/generator"
	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/messaging"
	natsclient "github.com/telhawk-systems/eventd/internal/messaging/nats"
)

var (
	logFile     = flag.String("log-file", "", "Append event log lines to this file")
	natsURL     = flag.String("nats-url", "", "Publish signals and metric reports to this NATS server")
	registryDir = flag.String("registry-dir", "", "Directory of additional message registry YAML files")
	prefixes    = flag.String("prefixes", "OpenBMC", "Comma-separated registry prefixes to draw messages from")
	count       = flag.Int("count", 100, "Number of events to generate")
	interval    = flag.Duration("interval", 100*time.Millisecond, "Interval between events")
	reportEvery = flag.Int("report-every", 10, "Publish a metric report every N events (0 disables)")
	reportID    = flag.String("report-id", "PlatformPowerUsage", "Metric report id")
	seed        = flag.Int64("seed", 0, "Random seed (0 for random)")
	logLevel    = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := logging.New(logging.ParseLevel(*logLevel), "text")
	if *logFile == "" && *natsURL == "" {
		logger.Error("nothing to do: set -log-file and/or -nats-url")
		os.Exit(2)
	}

	if err := run(logger.Logger); err != nil {
		logger.Error("eventgen failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	catalog, err := message.Default()
	if err != nil {
		return err
	}
	if *registryDir != "" {
		if err := catalog.LoadDir(*registryDir); err != nil {
			return err
		}
	}

	gen, err := generator.New(catalog, splitList(*prefixes), *seed)
	if err != nil {
		return err
	}

	var out *os.File
	if *logFile != "" {
		out, err = os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer out.Close()
	}

	var nc *natsclient.Client
	if *natsURL != "" {
		cfg := natsclient.DefaultConfig()
		cfg.URL = *natsURL
		cfg.Name = "eventgen"
		nc, err = natsclient.NewClient(cfg, logger)
		if err != nil {
			return err
		}
		defer nc.Drain() //nolint:errcheck // best effort flush on exit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting event generator",
		slog.String("log_file", *logFile),
		slog.String("nats_url", *natsURL),
		logging.Count(*count),
		slog.Duration("interval", *interval))

	sent := 0
	for i := 0; i < *count; i++ {
		m := gen.Message()
		now := time.Now()

		if out != nil {
			if _, err := fmt.Fprintln(out, generator.LogLine(now, m)); err != nil {
				return fmt.Errorf("write event log: %w", err)
			}
		}
		if nc != nil {
			if err := publishSignal(ctx, nc, m); err != nil {
				logger.Warn("failed to publish signal", logging.MessageID(m.ID), logging.Error(err))
			}
			if *reportEvery > 0 && (i+1)%*reportEvery == 0 {
				if err := publishReport(ctx, nc, gen, now); err != nil {
					logger.Warn("failed to publish metric report", logging.ReportID(*reportID), logging.Error(err))
				}
			}
		}
		sent++
		if sent%50 == 0 {
			logger.Info("progress", logging.Count(sent))
		}

		if *interval > 0 && i < *count-1 {
			select {
			case <-ctx.Done():
				logger.Info("interrupted", logging.Count(sent))
				return nil
			case <-time.After(*interval):
			}
		}
	}

	logger.Info("event generation complete", logging.Count(sent))
	return nil
}

func publishSignal(ctx context.Context, nc *natsclient.Client, m generator.Message) error {
	data, err := generator.Signal(m)
	if err != nil {
		return err
	}
	return nc.Publish(ctx, messaging.SubjectSignalsLogging, data)
}

func publishReport(ctx context.Context, nc *natsclient.Client, gen *generator.Generator, ts time.Time) error {
	data, err := gen.Report(*reportID, 4, ts)
	if err != nil {
		return err
	}
	return nc.Publish(ctx, messaging.SubjectTelemetryReports, data)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
