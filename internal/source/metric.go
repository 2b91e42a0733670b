package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/messaging"
	"github.com/telhawk-systems/eventd/internal/metrics"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

type reportPayload struct {
	ReportID  string `json:"report_id"`
	Timestamp string `json:"timestamp"`
	Readings  []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	} `json:"readings"`
}

// MetricListener follows telemetry report messages.
type MetricListener struct {
	subscriber messaging.Subscriber
	submit     func(subscription.MetricReport) bool
	logger     *slog.Logger

	mu  sync.Mutex
	sub messaging.Subscription
}

func NewMetricListener(subscriber messaging.Subscriber, submit func(subscription.MetricReport) bool, logger *slog.Logger) *MetricListener {
	return &MetricListener{subscriber: subscriber, submit: submit, logger: logger}
}

// Activate subscribes to the telemetry subject.
func (l *MetricListener) Activate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return nil
	}
	if l.subscriber == nil {
		return ErrMessagingDisabled
	}
	sub, err := l.subscriber.Subscribe(messaging.SubjectTelemetryReports, l.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messaging.SubjectTelemetryReports, err)
	}
	l.sub = sub
	return nil
}

// Deactivate tears the subscription down.
func (l *MetricListener) Deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		return
	}
	if err := l.sub.Unsubscribe(); err != nil {
		l.logger.Warn("failed to unsubscribe metric listener", logging.Error(err))
	}
	l.sub = nil
}

// Active reports whether the listener is subscribed.
func (l *MetricListener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

func (l *MetricListener) handle(_ context.Context, msg *messaging.Message) error {
	report, err := DecodeReport(msg.Data)
	if err != nil {
		metrics.RecordsDropped.WithLabelValues("bad_report").Inc()
		return err
	}
	if !l.submit(report) {
		metrics.RecordsDropped.WithLabelValues("loop_busy").Inc()
		l.logger.Warn("dropping metric report, event loop busy", logging.ReportID(report.ReportID))
	}
	return nil
}

// DecodeReport parses a telemetry payload. Values may be JSON strings or numbers.
func DecodeReport(data []byte) (subscription.MetricReport, error) {
	var p reportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return subscription.MetricReport{}, fmt.Errorf("decode report: %w", err)
	}
	if p.ReportID == "" {
		return subscription.MetricReport{}, errors.New("decode report: missing report_id")
	}
	report := subscription.MetricReport{
		ReportID:  p.ReportID,
		Timestamp: p.Timestamp,
		Readings:  make([]subscription.Reading, 0, len(p.Readings)),
	}
	for _, r := range p.Readings {
		value := strings.TrimSpace(string(r.Value))
		var s string
		if err := json.Unmarshal(r.Value, &s); err == nil {
			value = s
		}
		report.Readings = append(report.Readings, subscription.Reading{Name: r.Name, Value: value})
	}
	return report, nil
}
