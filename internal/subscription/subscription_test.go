package subscription

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
)

type fakeTransport struct {
	submitted []Delivery
	policies  map[string]RetryPolicy
	cancelled []string
}

func (f *fakeTransport) Submit(d Delivery) { f.submitted = append(f.submitted, d) }

func (f *fakeTransport) UpdateRetryPolicy(name string, attempts int, interval time.Duration) {
	if f.policies == nil {
		f.policies = map[string]RetryPolicy{}
	}
	f.policies[name] = RetryPolicy{Name: name, Attempts: attempts, Interval: interval}
}

func (f *fakeTransport) Cancel(id string) { f.cancelled = append(f.cancelled, id) }

type fakeStream struct {
	sent   [][]byte
	err    error
	closed bool
}

func (f *fakeStream) Send(p []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func testCatalog(t *testing.T) *message.Catalog {
	t.Helper()
	c, err := message.Default()
	require.NoError(t, err)
	return c
}

func newPush(t *testing.T, spec Spec) (*Subscription, *fakeTransport) {
	t.Helper()
	require.NoError(t, spec.Normalize())
	dest, err := ParseDestination(spec.Destination)
	require.NoError(t, err)
	tr := &fakeTransport{}
	return NewPush("sub-1", spec, dest, Deps{Transport: tr, Catalog: testCatalog(t), Logger: logging.Nop()}), tr
}

func decodeEnvelope(t *testing.T, payload []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Destination
		wantErr bool
	}{
		{name: "http default port", raw: "http://10.0.0.5/events", want: Destination{"http", "10.0.0.5", "80", "/events"}},
		{name: "https explicit port", raw: "https://listener.example:8443/hook?x=1", want: Destination{"https", "listener.example", "8443", "/hook?x=1"}},
		{name: "empty path", raw: "https://h", want: Destination{"https", "h", "443", "/"}},
		{name: "ftp rejected", raw: "ftp://h/x", wantErr: true},
		{name: "no host", raw: "http:///x", wantErr: true},
		{name: "relative", raw: "/events", wantErr: true},
		{name: "garbage", raw: "http://[::1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDestination(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDestination)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDestination_URL(t *testing.T) {
	d, err := ParseDestination("https://10.0.0.5/redfish")
	require.NoError(t, err)
	assert.Equal(t, "https://10.0.0.5:443/redfish", d.URL())
	assert.True(t, d.UseTLS())
}

func TestSpecNormalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := Spec{Destination: "http://h/", Protocol: ProtocolRedfish}
		require.NoError(t, s.Normalize())
		assert.Equal(t, TypeRedfishEvent, s.SubscriptionType)
		assert.Equal(t, FormatEvent, s.EventFormatType)
		assert.Equal(t, PolicyTerminateAfterRetries, s.RetryPolicy)
	})
	t.Run("unsupported protocol", func(t *testing.T) {
		s := Spec{Destination: "http://h/", Protocol: "SNMPv2c"}
		assert.ErrorIs(t, s.Normalize(), ErrUnsupportedProtocol)
	})
	t.Run("missing protocol", func(t *testing.T) {
		s := Spec{Destination: "http://h/"}
		assert.ErrorIs(t, s.Normalize(), ErrInvalidSpec)
	})
	t.Run("bad policy", func(t *testing.T) {
		s := Spec{Protocol: ProtocolRedfish, RetryPolicy: "Sometimes"}
		assert.ErrorIs(t, s.Normalize(), ErrInvalidSpec)
	})
	t.Run("bad format", func(t *testing.T) {
		s := Spec{Protocol: ProtocolRedfish, EventFormatType: "Telemetry"}
		assert.ErrorIs(t, s.Normalize(), ErrInvalidSpec)
	})
	t.Run("content type header", func(t *testing.T) {
		s := Spec{Protocol: ProtocolRedfish, HTTPHeaders: map[string]string{"content-type": "text/plain"}}
		assert.ErrorIs(t, s.Normalize(), ErrInvalidSpec)
	})
	t.Run("stream defaults protocol", func(t *testing.T) {
		s := Spec{SubscriptionType: TypeSSE}
		require.NoError(t, s.Normalize())
		assert.True(t, s.IsStream())
		assert.Equal(t, ProtocolRedfish, s.Protocol)
	})
}

func TestMatchesEvent(t *testing.T) {
	ev := EventRecord{
		MessageID:         "OpenBMC.0.4.PowerSupplyFailed",
		RegistryPrefix:    "OpenBMC",
		MessageKey:        "PowerSupplyFailed",
		OriginOfCondition: "/redfish/v1/Chassis/chassis/Power",
	}
	tests := []struct {
		name   string
		filter Filter
		format FormatType
		want   bool
	}{
		{name: "empty accepts all", want: true},
		{name: "prefix match", filter: Filter{RegistryPrefixes: []string{"Base", "OpenBMC"}}, want: true},
		{name: "prefix miss", filter: Filter{RegistryPrefixes: []string{"Base"}}, want: false},
		{name: "short message id", filter: Filter{MessageIDs: []string{"OpenBMC.PowerSupplyFailed"}}, want: true},
		{name: "full message id", filter: Filter{MessageIDs: []string{"OpenBMC.0.4.PowerSupplyFailed"}}, want: true},
		{name: "message id miss", filter: Filter{MessageIDs: []string{"OpenBMC.FanRemoved"}}, want: false},
		{name: "origin match", filter: Filter{OriginResources: []string{"/redfish/v1/Chassis/chassis/Power"}}, want: true},
		{name: "origin miss", filter: Filter{OriginResources: []string{"/redfish/v1/Systems/system"}}, want: false},
		{name: "dimensions are ANDed", filter: Filter{RegistryPrefixes: []string{"OpenBMC"}, MessageIDs: []string{"Base.Success"}}, want: false},
		{name: "resource types do not filter", filter: Filter{ResourceTypes: []string{"Task"}}, want: true},
		{name: "metric subscriber", format: FormatMetricReport, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := tt.format
			if format == "" {
				format = FormatEvent
			}
			s := &Subscription{spec: Spec{EventFormatType: format, Filter: tt.filter}}
			assert.Equal(t, tt.want, s.MatchesEvent(ev))
		})
	}
}

func TestMatchesEvent_OriginFilterIgnoredWithoutOrigin(t *testing.T) {
	s := &Subscription{spec: Spec{EventFormatType: FormatEvent, Filter: Filter{OriginResources: []string{"/redfish/v1/Systems/system"}}}}
	assert.True(t, s.MatchesEvent(EventRecord{MessageID: "Base.1.16.Success", RegistryPrefix: "Base", MessageKey: "Success"}))
}

func TestMatchesMetric(t *testing.T) {
	wild := &Subscription{spec: Spec{EventFormatType: FormatMetricReport}}
	assert.True(t, wild.MatchesMetric("PlatformPower"))

	scoped := &Subscription{spec: Spec{EventFormatType: FormatMetricReport, Filter: Filter{
		MetricReportDefinitions: []string{DefinitionURI("PlatformPower")},
	}}}
	assert.True(t, scoped.MatchesMetric("PlatformPower"))
	assert.False(t, scoped.MatchesMetric("Thermal"))

	events := &Subscription{spec: Spec{EventFormatType: FormatEvent}}
	assert.False(t, events.MatchesMetric("PlatformPower"))
}

func TestDeliverEvents_Push(t *testing.T) {
	sub, tr := newPush(t, Spec{
		Destination: "http://10.0.0.5/events",
		Protocol:    ProtocolRedfish,
		Context:     "ctx-1",
		HTTPHeaders: map[string]string{"X-Token": "abc"},
		Filter:      Filter{RegistryPrefixes: []string{"OpenBMC"}},
	})

	sent := sub.DeliverEvents([]EventRecord{
		{EventID: "1704067200", Timestamp: "2024-01-01T00:00:00", MessageID: "OpenBMC.0.4.PowerSupplyFailed",
			RegistryPrefix: "OpenBMC", MessageKey: "PowerSupplyFailed", Args: []string{"PSU1"}},
		{EventID: "1704067200_1", Timestamp: "2024-01-01T00:00:00", MessageID: "Base.1.16.Success",
			RegistryPrefix: "Base", MessageKey: "Success"},
	})
	require.True(t, sent)
	require.Len(t, tr.submitted, 1)

	d := tr.submitted[0]
	assert.Equal(t, "sub-1", d.SubscriptionID)
	assert.Equal(t, "http://10.0.0.5:80/events", d.URL)
	assert.False(t, d.UseTLS)
	assert.Equal(t, "POST", d.Method)
	assert.Equal(t, PolicyTerminateAfterRetries, d.RetryPolicy)
	assert.Equal(t, "abc", d.Headers["X-Token"])
	assert.Equal(t, "application/json", d.Headers["Content-Type"])

	env := decodeEnvelope(t, d.Payload)
	assert.Equal(t, EventODataType, env.ODataType)
	assert.Equal(t, "1", env.ID)
	assert.Equal(t, "ctx-1", env.Context)
	require.Len(t, env.Events, 1)
	assert.Equal(t, "1704067200", env.Events[0].EventID)
	assert.Equal(t, "Power supply PSU1 failed.", env.Events[0].Message)
	assert.Equal(t, "Critical", env.Events[0].Severity)
	assert.Equal(t, []string{"PSU1"}, env.Events[0].MessageArgs)

	assert.Equal(t, uint64(2), sub.Sequence())
}

func TestDeliverEvents_DropsUnformattable(t *testing.T) {
	sub, tr := newPush(t, Spec{Destination: "http://h/", Protocol: ProtocolRedfish})

	sent := sub.DeliverEvents([]EventRecord{
		{MessageID: "OpenBMC.0.4.PowerSupplyFailed", RegistryPrefix: "OpenBMC", MessageKey: "PowerSupplyFailed"},
		{MessageID: "Nope.1.0.Missing", RegistryPrefix: "Nope", MessageKey: "Missing"},
	})
	assert.False(t, sent)
	assert.Empty(t, tr.submitted)
	assert.Equal(t, uint64(1), sub.Sequence(), "no envelope, no sequence advance")
}

func TestDeliverEvents_RecordSeverityOverridesRegistry(t *testing.T) {
	sub, tr := newPush(t, Spec{Destination: "http://h/", Protocol: ProtocolRedfish})

	require.True(t, sub.DeliverEvents([]EventRecord{
		{MessageID: "Base.1.16.Success", RegistryPrefix: "Base", MessageKey: "Success", Severity: "Warning"},
	}))
	require.Len(t, tr.submitted, 1)

	item := decodeEnvelope(t, tr.submitted[0].Payload).Events[0]
	assert.Equal(t, "The request completed successfully.", item.Message)
	assert.Equal(t, "Warning", item.Severity)
	assert.Equal(t, "Warning", item.MessageSeverity)
	assert.Equal(t, "None.", item.Resolution)
}

func TestDeliverEvents_SequenceAdvancesEachEnvelope(t *testing.T) {
	sub, tr := newPush(t, Spec{Destination: "http://h/", Protocol: ProtocolRedfish})
	ev := EventRecord{MessageID: "Base.1.16.Success", RegistryPrefix: "Base", MessageKey: "Success"}

	for i := 0; i < 3; i++ {
		require.True(t, sub.DeliverEvents([]EventRecord{ev}))
	}
	require.Len(t, tr.submitted, 3)
	for i, d := range tr.submitted {
		assert.Equal(t, []string{"1", "2", "3"}[i], decodeEnvelope(t, d.Payload).ID)
	}
}

func TestDeliverEvents_Stream(t *testing.T) {
	st := &fakeStream{}
	spec := Spec{SubscriptionType: TypeSSE}
	require.NoError(t, spec.Normalize())
	sub := NewStream("s-1", spec, st, Deps{Catalog: testCatalog(t)})

	ev := EventRecord{MessageID: "Base.1.16.Success", RegistryPrefix: "Base", MessageKey: "Success",
		OriginOfCondition: "/redfish/v1/Managers/bmc"}
	require.True(t, sub.DeliverEvents([]EventRecord{ev}))
	require.Len(t, st.sent, 1)
	env := decodeEnvelope(t, st.sent[0])
	require.NotNil(t, env.Events[0].OriginOfCondition)
	assert.Equal(t, "/redfish/v1/Managers/bmc", env.Events[0].OriginOfCondition.ID)

	st.err = ErrStreamFull
	require.True(t, sub.DeliverEvents([]EventRecord{ev}))
	assert.Equal(t, uint64(3), sub.Sequence(), "sequence advances even when the write fails")

	_, isPush := sub.Destination()
	assert.False(t, isPush)
	require.NoError(t, sub.Close())
	assert.True(t, st.closed)
}

func TestDeliverMetricReport(t *testing.T) {
	sub, tr := newPush(t, Spec{
		Destination:     "https://collector/metrics",
		Protocol:        ProtocolRedfish,
		EventFormatType: FormatMetricReport,
		Filter:          Filter{MetricReportDefinitions: []string{DefinitionURI("PlatformPower")}},
	})

	assert.False(t, sub.DeliverMetricReport(MetricReport{ReportID: "Thermal"}))
	require.True(t, sub.DeliverMetricReport(MetricReport{
		ReportID:  "PlatformPower",
		Timestamp: "2024-01-01T00:00:00Z",
		Readings:  []Reading{{Name: "/redfish/v1/Chassis/c/Power#/PowerConsumedWatts", Value: "312"}},
	}))
	require.Len(t, tr.submitted, 1)

	var body MetricReportBody
	require.NoError(t, json.Unmarshal(tr.submitted[0].Payload, &body))
	assert.Equal(t, MetricReportODataType, body.ODataType)
	assert.Equal(t, "PlatformPower", body.ID)
	assert.Equal(t, DefinitionURI("PlatformPower"), body.MetricReportDefinition.ID)
	require.Len(t, body.MetricValues, 1)
	assert.Equal(t, "312", body.MetricValues[0].MetricValue)
	assert.Equal(t, "2024-01-01T00:00:00Z", body.MetricValues[0].Timestamp)
	assert.True(t, tr.submitted[0].UseTLS)
}

func TestUpdateRetryConfig(t *testing.T) {
	sub, tr := newPush(t, Spec{Destination: "http://h/", Protocol: ProtocolRedfish, RetryPolicy: PolicySuspendRetries})

	sub.UpdateRetryConfig(5, 2*time.Second)

	assert.Equal(t, RetryPolicy{Name: PolicySuspendRetries, Attempts: 5, Interval: 2 * time.Second}, sub.RetryPolicy())
	assert.Equal(t, sub.RetryPolicy(), tr.policies[PolicySuspendRetries])
}

func TestRecord(t *testing.T) {
	sub, _ := newPush(t, Spec{Destination: "http://h/", Protocol: ProtocolRedfish, Context: "c"})
	rec := sub.Record()
	assert.Equal(t, "sub-1", rec.ID)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "sub-1", raw["Id"])
	assert.Equal(t, "http://h/", raw["Destination"])
	assert.Equal(t, "TerminateAfterRetries", raw["DeliveryRetryPolicy"])
}

func TestSendTestEvent_BypassesFilter(t *testing.T) {
	sub, tr := newPush(t, Spec{
		Destination: "http://h/",
		Protocol:    ProtocolRedfish,
		Filter:      Filter{RegistryPrefixes: []string{"TaskEvent"}},
	})

	require.True(t, sub.SendTestEvent(EventRecord{
		EventID:   "TestID",
		MessageID: "Custom.1.0.Anything",
		Message:   "Generated test event",
		Severity:  "OK",
	}))
	require.Len(t, tr.submitted, 1)
	ev := decodeEnvelope(t, tr.submitted[0].Payload).Events[0]
	assert.Equal(t, "Generated test event", ev.Message)
	assert.Equal(t, "OK", ev.Severity)

	metricSub, _ := newPush(t, Spec{Destination: "http://m/", Protocol: ProtocolRedfish, EventFormatType: FormatMetricReport})
	assert.False(t, metricSub.SendTestEvent(EventRecord{Message: "x"}))
}
