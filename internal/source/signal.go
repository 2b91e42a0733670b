// Package source turns broker messages into records for the event service.
// Listeners subscribe only while the registry has subscribers for them.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/messaging"
	"github.com/telhawk-systems/eventd/internal/metrics"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// LoggingEntryInterface is the interface whose property changes carry events.
const LoggingEntryInterface = "xyz.openbmc_project.Logging.Entry"

// AdditionalData keys.
const (
	keyMessageID = "REDFISH_MESSAGE_ID"
	keyArgs      = "REDFISH_MESSAGE_ARGS"
	keyOrigin    = "REDFISH_ORIGIN_OF_CONDITION"
)

// ErrMessagingDisabled is returned by Activate when no broker is configured.
var ErrMessagingDisabled = errors.New("messaging disabled")

// levelPrefix qualifies the Severity property of a logging entry.
const levelPrefix = LoggingEntryInterface + ".Level."

type signalPayload struct {
	Interface  string `json:"interface"`
	Properties struct {
		AdditionalData json.RawMessage `json:"AdditionalData"`
		// Timestamp is milliseconds since the epoch.
		Timestamp *int64 `json:"Timestamp"`
		Severity  string `json:"Severity"`
	} `json:"properties"`
}

// redfishSeverity maps a logging entry level onto OK, Warning or Critical.
// Unknown levels return "" so the registry severity applies.
func redfishSeverity(level string) string {
	switch strings.TrimPrefix(level, levelPrefix) {
	case "Emergency", "Alert", "Critical", "Error":
		return "Critical"
	case "Warning":
		return "Warning"
	case "Notice", "Informational", "Debug":
		return "OK"
	default:
		return ""
	}
}

// SignalListener follows logging status-change signals.
type SignalListener struct {
	subscriber messaging.Subscriber
	submit     func(subscription.EventRecord) bool
	logger     *slog.Logger

	mu  sync.Mutex
	sub messaging.Subscription
}

// NewSignalListener creates a listener that hands decoded events to submit.
// A nil subscriber makes Activate fail so the feed runs degraded.
func NewSignalListener(subscriber messaging.Subscriber, submit func(subscription.EventRecord) bool, logger *slog.Logger) *SignalListener {
	return &SignalListener{subscriber: subscriber, submit: submit, logger: logger}
}

// Activate subscribes to the signal subject.
func (l *SignalListener) Activate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return nil
	}
	if l.subscriber == nil {
		return ErrMessagingDisabled
	}
	sub, err := l.subscriber.Subscribe(messaging.SubjectSignalsLogging, l.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messaging.SubjectSignalsLogging, err)
	}
	l.sub = sub
	return nil
}

// Deactivate tears the subscription down.
func (l *SignalListener) Deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		return
	}
	if err := l.sub.Unsubscribe(); err != nil {
		l.logger.Warn("failed to unsubscribe signal listener", logging.Error(err))
	}
	l.sub = nil
}

// Active reports whether the listener is subscribed.
func (l *SignalListener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

func (l *SignalListener) handle(_ context.Context, msg *messaging.Message) error {
	ev, ok, err := DecodeSignal(msg.Data)
	if err != nil {
		metrics.RecordsDropped.WithLabelValues("bad_signal").Inc()
		return err
	}
	if !ok {
		return nil
	}
	if !l.submit(ev) {
		metrics.RecordsDropped.WithLabelValues("loop_busy").Inc()
		l.logger.Warn("dropping signal event, event loop busy", logging.MessageID(ev.MessageID))
	}
	return nil
}

// DecodeSignal parses a signal payload. ok is false for signals that do not
// describe a Redfish event.
func DecodeSignal(data []byte) (ev subscription.EventRecord, ok bool, err error) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ev, false, fmt.Errorf("decode signal: %w", err)
	}
	if p.Interface != "" && p.Interface != LoggingEntryInterface {
		return ev, false, nil
	}
	fields, err := additionalData(p.Properties.AdditionalData)
	if err != nil {
		return ev, false, err
	}

	messageID := fields[keyMessageID]
	if messageID == "" {
		return ev, false, nil
	}
	id, err := message.ParseID(messageID)
	if err != nil {
		return ev, false, err
	}

	ev = subscription.EventRecord{
		MessageID:         messageID,
		RegistryPrefix:    id.Registry,
		MessageKey:        id.Key,
		Args:              []string{},
		OriginOfCondition: fields[keyOrigin],
		Severity:          redfishSeverity(p.Properties.Severity),
	}
	if ts := p.Properties.Timestamp; ts != nil {
		ev.Timestamp = time.UnixMilli(*ts).UTC().Format(time.RFC3339)
	}
	if args := fields[keyArgs]; args != "" {
		ev.Args = strings.Split(args, ",")
	}
	return ev, true, nil
}

// additionalData accepts both the list form ["K=V", ...] and the map form.
func additionalData(raw json.RawMessage) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, entry := range list {
			k, v, found := strings.Cut(entry, "=")
			if found {
				out[k] = v
			}
		}
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode AdditionalData: %w", err)
	}
	return out, nil
}
