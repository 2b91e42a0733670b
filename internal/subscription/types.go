// Package subscription models one event receiver: its filter, its
// destination (push URL or open stream) and the envelopes it emits.
package subscription

import (
	"errors"
	"time"
)

// FormatType selects which source feeds a subscription.
type FormatType string

const (
	FormatEvent        FormatType = "Event"
	FormatMetricReport FormatType = "MetricReport"
)

// Valid reports whether f is a known format type.
func (f FormatType) Valid() bool {
	return f == FormatEvent || f == FormatMetricReport
}

// Subscription types as exposed on the EventDestination resource.
const (
	TypeRedfishEvent = "RedfishEvent"
	TypeSSE          = "SSE"
	TypeWebSocket    = "WebSocket"
)

// ProtocolRedfish is the only supported push protocol.
const ProtocolRedfish = "Redfish"

// Retry policy names.
const (
	PolicyTerminateAfterRetries = "TerminateAfterRetries"
	PolicySuspendRetries        = "SuspendRetries"
	PolicyRetryForever          = "RetryForever"
)

// ValidPolicy reports whether name is a known retry policy.
func ValidPolicy(name string) bool {
	switch name {
	case PolicyTerminateAfterRetries, PolicySuspendRetries, PolicyRetryForever:
		return true
	}
	return false
}

var (
	// ErrInvalidDestination is returned for push URLs that are not absolute http(s) URLs.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrUnsupportedProtocol is returned for any protocol other than Redfish.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	// ErrInvalidSpec is returned for malformed subscription fields.
	ErrInvalidSpec = errors.New("invalid subscription")
	// ErrStreamFull is returned by streams whose buffer cannot take another event.
	ErrStreamFull = errors.New("stream buffer full")
)

// Filter restricts which records reach a subscription. An empty set accepts
// everything; non-empty sets are ANDed.
type Filter struct {
	RegistryPrefixes        []string `json:"RegistryPrefixes,omitempty"`
	MessageIDs              []string `json:"MessageIds,omitempty"`
	OriginResources         []string `json:"OriginResources,omitempty"`
	ResourceTypes           []string `json:"ResourceTypes,omitempty"`
	MetricReportDefinitions []string `json:"MetricReportDefinitions,omitempty"`
}

// Spec is everything a client supplies when creating a subscription.
type Spec struct {
	Destination      string            `json:"Destination,omitempty"`
	Protocol         string            `json:"Protocol,omitempty"`
	Context          string            `json:"Context,omitempty"`
	EventFormatType  FormatType        `json:"EventFormatType,omitempty"`
	SubscriptionType string            `json:"SubscriptionType,omitempty"`
	RetryPolicy      string            `json:"DeliveryRetryPolicy,omitempty"`
	HTTPHeaders      map[string]string `json:"HttpHeaders,omitempty"`
	Filter
}

// Record is the persisted form of a push subscription.
type Record struct {
	ID string `json:"Id"`
	Spec
}

// RetryPolicy is the named policy plus the service-wide retry parameters.
type RetryPolicy struct {
	Name     string
	Attempts int
	Interval time.Duration
}

// Delivery is one envelope handed to the push transport.
type Delivery struct {
	SubscriptionID string
	URL            string
	UseTLS         bool
	Method         string
	Headers        map[string]string
	Payload        []byte
	RetryPolicy    string
}

// Transport performs push deliveries asynchronously. Implementations hold
// subscription ids only, never subscriptions.
type Transport interface {
	Submit(d Delivery)
	UpdateRetryPolicy(name string, attempts int, interval time.Duration)
	Cancel(subscriptionID string)
}

// Stream is an open client connection receiving envelopes directly.
type Stream interface {
	Send(payload []byte) error
	Close() error
}

// EventRecord is a source-agnostic event ready for filtering and formatting.
type EventRecord struct {
	EventID           string
	Timestamp         string
	MessageID         string
	RegistryPrefix    string
	MessageKey        string
	Args              []string
	OriginOfCondition string

	// Message, when set, is used verbatim instead of the registry lookup.
	// Test events carry it. Severity, when set, overrides the registry
	// severity; logging entries report their own level.
	Message  string
	Severity string
}

// Reading is one metric value in a report.
type Reading struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetricReport is a telemetry report from the metric source.
type MetricReport struct {
	ReportID  string    `json:"report_id"`
	Timestamp string    `json:"timestamp"`
	Readings  []Reading `json:"readings"`
}

// DefinitionURI returns the MetricReportDefinition resource for a report id.
func DefinitionURI(reportID string) string {
	return "/redfish/v1/TelemetryService/MetricReportDefinitions/" + reportID
}
