package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/messaging"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

type fakeSubscription struct {
	subject string
	valid   bool
}

func (s *fakeSubscription) Unsubscribe() error { s.valid = false; return nil }
func (s *fakeSubscription) Subject() string    { return s.subject }
func (s *fakeSubscription) IsValid() bool      { return s.valid }

type fakeSubscriber struct {
	handlers map[string]messaging.MessageHandler
	subs     []*fakeSubscription
	err      error
}

func (f *fakeSubscriber) Subscribe(subject string, h messaging.MessageHandler) (messaging.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.handlers == nil {
		f.handlers = map[string]messaging.MessageHandler{}
	}
	f.handlers[subject] = h
	s := &fakeSubscription{subject: subject, valid: true}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func (f *fakeSubscriber) deliver(t *testing.T, subject, data string) error {
	t.Helper()
	h, ok := f.handlers[subject]
	require.True(t, ok, "no handler for %s", subject)
	return h(context.Background(), &messaging.Message{Subject: subject, Data: []byte(data)})
}

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    subscription.EventRecord
		ok      bool
		wantErr bool
	}{
		{
			name: "list form",
			data: `{"interface":"xyz.openbmc_project.Logging.Entry","properties":{"AdditionalData":[
				"REDFISH_MESSAGE_ID=OpenBMC.0.4.PowerSupplyFailed",
				"REDFISH_MESSAGE_ARGS=PSU0",
				"REDFISH_ORIGIN_OF_CONDITION=/redfish/v1/Chassis/chassis"]}}`,
			want: subscription.EventRecord{
				MessageID: "OpenBMC.0.4.PowerSupplyFailed", RegistryPrefix: "OpenBMC", MessageKey: "PowerSupplyFailed",
				Args: []string{"PSU0"}, OriginOfCondition: "/redfish/v1/Chassis/chassis",
			},
			ok: true,
		},
		{
			name: "map form with several args",
			data: `{"properties":{"AdditionalData":{"REDFISH_MESSAGE_ID":"Base.1.16.PropertyValueModified","REDFISH_MESSAGE_ARGS":"Name,x"}}}`,
			want: subscription.EventRecord{
				MessageID: "Base.1.16.PropertyValueModified", RegistryPrefix: "Base", MessageKey: "PropertyValueModified",
				Args: []string{"Name", "x"},
			},
			ok: true,
		},
		{
			name: "entry timestamp and level",
			data: `{"interface":"xyz.openbmc_project.Logging.Entry","properties":{
				"Timestamp":1704067200000,
				"Severity":"xyz.openbmc_project.Logging.Entry.Level.Critical",
				"AdditionalData":["REDFISH_MESSAGE_ID=OpenBMC.0.4.PowerSupplyFailed","REDFISH_MESSAGE_ARGS=PSU0"]}}`,
			want: subscription.EventRecord{
				Timestamp: "2024-01-01T00:00:00Z", Severity: "Critical",
				MessageID: "OpenBMC.0.4.PowerSupplyFailed", RegistryPrefix: "OpenBMC", MessageKey: "PowerSupplyFailed",
				Args: []string{"PSU0"},
			},
			ok: true,
		},
		{
			name: "informational level maps to OK",
			data: `{"properties":{"Severity":"xyz.openbmc_project.Logging.Entry.Level.Informational",
				"AdditionalData":["REDFISH_MESSAGE_ID=Base.1.16.Success"]}}`,
			want: subscription.EventRecord{
				Severity: "OK", MessageID: "Base.1.16.Success", RegistryPrefix: "Base", MessageKey: "Success",
				Args: []string{},
			},
			ok: true,
		},
		{
			name: "unknown level leaves registry severity",
			data: `{"properties":{"Severity":"Bogus","AdditionalData":["REDFISH_MESSAGE_ID=Base.1.16.Success"]}}`,
			want: subscription.EventRecord{
				MessageID: "Base.1.16.Success", RegistryPrefix: "Base", MessageKey: "Success", Args: []string{},
			},
			ok: true,
		},
		{name: "no message id", data: `{"properties":{"AdditionalData":["FOO=bar"]}}`},
		{name: "other interface", data: `{"interface":"xyz.openbmc_project.Sensor.Value","properties":{}}`},
		{name: "malformed json", data: `{`, wantErr: true},
		{name: "malformed message id", data: `{"properties":{"AdditionalData":["REDFISH_MESSAGE_ID=Nope"]}}`, wantErr: true},
		{name: "bad additional data", data: `{"properties":{"AdditionalData":42}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := DecodeSignal([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, ev)
			}
		})
	}
}

func TestRedfishSeverity(t *testing.T) {
	tests := map[string]string{
		"xyz.openbmc_project.Logging.Entry.Level.Emergency": "Critical",
		"xyz.openbmc_project.Logging.Entry.Level.Alert":     "Critical",
		"xyz.openbmc_project.Logging.Entry.Level.Error":     "Critical",
		"xyz.openbmc_project.Logging.Entry.Level.Warning":   "Warning",
		"xyz.openbmc_project.Logging.Entry.Level.Notice":    "OK",
		"xyz.openbmc_project.Logging.Entry.Level.Debug":     "OK",
		"Warning": "Warning",
		"":        "",
	}
	for level, want := range tests {
		assert.Equal(t, want, redfishSeverity(level), level)
	}
}

func TestSignalListener_Lifecycle(t *testing.T) {
	sub := &fakeSubscriber{}
	var got []subscription.EventRecord
	l := NewSignalListener(sub, func(ev subscription.EventRecord) bool {
		got = append(got, ev)
		return true
	}, logging.Nop())

	require.NoError(t, l.Activate())
	require.NoError(t, l.Activate(), "second activation is a no-op")
	assert.Len(t, sub.subs, 1)
	assert.True(t, l.Active())

	require.NoError(t, sub.deliver(t, messaging.SubjectSignalsLogging,
		`{"properties":{"AdditionalData":["REDFISH_MESSAGE_ID=Base.1.16.ResourceChanged"]}}`))
	require.Len(t, got, 1)
	assert.Equal(t, "ResourceChanged", got[0].MessageKey)
	assert.Equal(t, []string{}, got[0].Args)

	assert.Error(t, sub.deliver(t, messaging.SubjectSignalsLogging, `not json`))

	l.Deactivate()
	assert.False(t, l.Active())
	assert.False(t, sub.subs[0].valid, "deactivation unsubscribes")
	l.Deactivate()
}

func TestSignalListener_Degraded(t *testing.T) {
	l := NewSignalListener(nil, func(subscription.EventRecord) bool { return true }, logging.Nop())
	assert.ErrorIs(t, l.Activate(), ErrMessagingDisabled)

	failing := &fakeSubscriber{err: errors.New("no connection")}
	l = NewSignalListener(failing, func(subscription.EventRecord) bool { return true }, logging.Nop())
	assert.Error(t, l.Activate())
	assert.False(t, l.Active())
}

func TestDecodeReport(t *testing.T) {
	report, err := DecodeReport([]byte(`{"report_id":"PlatformPower","timestamp":"2024-01-01T00:00:00Z",
		"readings":[{"name":"PowerConsumedWatts","value":312.5},{"name":"State","value":"Enabled"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "PlatformPower", report.ReportID)
	assert.Equal(t, []subscription.Reading{
		{Name: "PowerConsumedWatts", Value: "312.5"},
		{Name: "State", Value: "Enabled"},
	}, report.Readings)

	_, err = DecodeReport([]byte(`{"readings":[]}`))
	assert.Error(t, err)
	_, err = DecodeReport([]byte(`[`))
	assert.Error(t, err)
}

func TestMetricListener_Lifecycle(t *testing.T) {
	sub := &fakeSubscriber{}
	var got []subscription.MetricReport
	l := NewMetricListener(sub, func(r subscription.MetricReport) bool {
		got = append(got, r)
		return false
	}, logging.Nop())

	require.NoError(t, l.Activate())
	require.NoError(t, sub.deliver(t, messaging.SubjectTelemetryReports, `{"report_id":"Thermal","readings":[]}`))
	require.Len(t, got, 1, "a busy loop drops the report but the handler still succeeds")

	l.Deactivate()
	assert.False(t, l.Active())
	assert.False(t, sub.subs[0].valid)

	assert.ErrorIs(t, NewMetricListener(nil, nil, logging.Nop()).Activate(), ErrMessagingDisabled)
}
