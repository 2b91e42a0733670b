package subscription

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/metrics"
)

// Deps are the collaborators a subscription delivers through.
type Deps struct {
	Transport Transport
	Catalog   *message.Catalog
	Logger    *slog.Logger
}

// Subscription is one receiver. The push destination and the stream are
// mutually exclusive and fixed at construction. It is not safe for
// concurrent use; the event service owns it on a single goroutine.
type Subscription struct {
	id   string
	spec Spec

	dest   *Destination
	stream Stream

	seq    uint64
	policy RetryPolicy

	transport Transport
	catalog   *message.Catalog
	logger    *slog.Logger
	now       func() time.Time
}

// NewPush creates a subscription delivering to dest through the transport.
func NewPush(id string, spec Spec, dest Destination, deps Deps) *Subscription {
	s := newSubscription(id, spec, deps)
	s.dest = &dest
	s.logger = s.logger.With(logging.Destination(dest.String()))
	return s
}

// NewStream creates a subscription writing to an open connection.
func NewStream(id string, spec Spec, stream Stream, deps Deps) *Subscription {
	s := newSubscription(id, spec, deps)
	s.stream = stream
	return s
}

func newSubscription(id string, spec Spec, deps Deps) *Subscription {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Subscription{
		id:        id,
		spec:      spec,
		seq:       1,
		policy:    RetryPolicy{Name: spec.RetryPolicy},
		transport: deps.Transport,
		catalog:   deps.Catalog,
		logger:    logger.With(logging.SubscriptionID(id)),
		now:       time.Now,
	}
}

func (s *Subscription) ID() string               { return s.id }
func (s *Subscription) Spec() Spec               { return s.spec }
func (s *Subscription) Format() FormatType       { return s.spec.EventFormatType }
func (s *Subscription) IsStream() bool           { return s.stream != nil }
func (s *Subscription) Sequence() uint64         { return s.seq }
func (s *Subscription) RetryPolicy() RetryPolicy { return s.policy }

// Destination returns the push destination, or false for streams.
func (s *Subscription) Destination() (Destination, bool) {
	if s.dest == nil {
		return Destination{}, false
	}
	return *s.dest, true
}

// Record returns the persisted form.
func (s *Subscription) Record() Record {
	return Record{ID: s.id, Spec: s.spec}
}

// UpdateRetryConfig applies service-wide retry parameters and forwards them
// to the transport under this subscription's policy name.
func (s *Subscription) UpdateRetryConfig(attempts int, interval time.Duration) {
	s.policy.Attempts = attempts
	s.policy.Interval = interval
	if s.dest != nil && s.transport != nil {
		s.transport.UpdateRetryPolicy(s.policy.Name, attempts, interval)
	}
}

// MatchesEvent applies the event filter to one record.
func (s *Subscription) MatchesEvent(ev EventRecord) bool {
	if s.spec.EventFormatType != FormatEvent {
		return false
	}
	f := s.spec.Filter
	if len(f.RegistryPrefixes) > 0 && !slices.Contains(f.RegistryPrefixes, ev.RegistryPrefix) {
		return false
	}
	if len(f.MessageIDs) > 0 {
		short := ev.RegistryPrefix + "." + ev.MessageKey
		if !slices.Contains(f.MessageIDs, short) && !slices.Contains(f.MessageIDs, ev.MessageID) {
			return false
		}
	}
	if len(f.OriginResources) > 0 && ev.OriginOfCondition != "" &&
		!slices.Contains(f.OriginResources, ev.OriginOfCondition) {
		return false
	}
	return true
}

// MatchesMetric reports whether a report with reportID should reach s.
func (s *Subscription) MatchesMetric(reportID string) bool {
	if s.spec.EventFormatType != FormatMetricReport {
		return false
	}
	defs := s.spec.MetricReportDefinitions
	return len(defs) == 0 || slices.Contains(defs, DefinitionURI(reportID))
}

// DeliverEvents filters and formats events into one envelope and sends it.
// Records that fail to format are dropped. It reports whether an envelope was
// sent; nothing is sent and the sequence does not move when no record survives.
func (s *Subscription) DeliverEvents(events []EventRecord) bool {
	matched := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		if s.MatchesEvent(ev) {
			matched = append(matched, ev)
		}
	}
	return s.deliver(matched)
}

// SendTestEvent delivers ev to an Event subscriber without filtering.
func (s *Subscription) SendTestEvent(ev EventRecord) bool {
	if s.spec.EventFormatType != FormatEvent {
		return false
	}
	return s.deliver([]EventRecord{ev})
}

func (s *Subscription) deliver(events []EventRecord) bool {
	items := make([]EventItem, 0, len(events))
	for _, ev := range events {
		item, err := s.formatEvent(ev, len(items))
		if err != nil {
			metrics.RecordsDropped.WithLabelValues("format_error").Inc()
			s.logger.Debug("dropping event, message format failed",
				logging.MessageID(ev.MessageID), logging.Error(err))
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return false
	}

	env := Envelope{
		ODataType: EventODataType,
		ID:        strconv.FormatUint(s.seq, 10),
		Name:      "Event Log",
		Context:   s.spec.Context,
		Events:    items,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal event envelope", logging.Error(err))
		return false
	}
	s.send(payload)
	return true
}

// DeliverMetricReport renders and sends one metric report.
func (s *Subscription) DeliverMetricReport(r MetricReport) bool {
	if !s.MatchesMetric(r.ReportID) {
		return false
	}
	ts := r.Timestamp
	if ts == "" {
		ts = s.now().UTC().Format(time.RFC3339)
	}
	values := make([]MetricValue, 0, len(r.Readings))
	for _, rd := range r.Readings {
		values = append(values, MetricValue{MetricProperty: rd.Name, MetricValue: rd.Value, Timestamp: ts})
	}
	body := MetricReportBody{
		ODataType:              MetricReportODataType,
		ODataID:                "/redfish/v1/TelemetryService/MetricReports/" + r.ReportID,
		ID:                     r.ReportID,
		Name:                   r.ReportID,
		Timestamp:              ts,
		Context:                s.spec.Context,
		MetricReportDefinition: ODataID{ID: DefinitionURI(r.ReportID)},
		MetricValues:           values,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("marshal metric report", logging.Error(err))
		return false
	}
	s.send(payload)
	return true
}

// send hands payload to the destination. The sequence advances whatever the
// outcome; push failures belong to the transport retry policy.
func (s *Subscription) send(payload []byte) {
	defer func() { s.seq++ }()

	format := string(s.spec.EventFormatType)
	if s.stream != nil {
		metrics.DeliveriesTotal.WithLabelValues("stream", format).Inc()
		if err := s.stream.Send(payload); err != nil {
			s.logger.Debug("stream send failed", logging.Error(err))
		}
		return
	}
	if s.transport == nil {
		return
	}
	headers := make(map[string]string, len(s.spec.HTTPHeaders)+1)
	for k, v := range s.spec.HTTPHeaders {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"

	metrics.DeliveriesTotal.WithLabelValues("push", format).Inc()
	s.transport.Submit(Delivery{
		SubscriptionID: s.id,
		URL:            s.dest.URL(),
		UseTLS:         s.dest.UseTLS(),
		Method:         "POST",
		Headers:        headers,
		Payload:        payload,
		RetryPolicy:    s.policy.Name,
	})
}

// Close releases the stream, if any.
func (s *Subscription) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *Subscription) formatEvent(ev EventRecord, member int) (EventItem, error) {
	item := EventItem{
		EventID:        ev.EventID,
		EventTimestamp: ev.Timestamp,
		EventType:      "Event",
		MemberID:       strconv.Itoa(member),
		MessageID:      ev.MessageID,
		MessageArgs:    ev.Args,
		Context:        s.spec.Context,
	}
	if item.MessageArgs == nil {
		item.MessageArgs = []string{}
	}
	switch {
	case ev.Message != "":
		item.Message = ev.Message
		item.Severity = ev.Severity
		item.MessageSeverity = ev.Severity
	case s.catalog != nil:
		f, err := s.catalog.Format(ev.MessageID, ev.Args)
		if err != nil {
			return EventItem{}, err
		}
		item.Message = f.Message
		item.Severity = f.Severity
		item.MessageSeverity = f.Severity
		item.Resolution = f.Resolution
		if ev.Severity != "" {
			item.Severity = ev.Severity
			item.MessageSeverity = ev.Severity
		}
	}
	if ev.OriginOfCondition != "" {
		item.OriginOfCondition = &ODataID{ID: ev.OriginOfCondition}
	}
	return item, nil
}
