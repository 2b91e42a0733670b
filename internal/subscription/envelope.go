package subscription

const (
	EventODataType        = "#Event.v1_4_0.Event"
	MetricReportODataType = "#MetricReport.v1_3_0.MetricReport"
)

// ODataID is a resource link.
type ODataID struct {
	ID string `json:"@odata.id"`
}

// Envelope is the canonical event payload.
type Envelope struct {
	ODataType string      `json:"@odata.type"`
	ID        string      `json:"Id"`
	Name      string      `json:"Name"`
	Context   string      `json:"Context,omitempty"`
	Events    []EventItem `json:"Events"`
}

// EventItem is one entry of Envelope.Events.
type EventItem struct {
	EventID           string   `json:"EventId"`
	EventTimestamp    string   `json:"EventTimestamp"`
	EventType         string   `json:"EventType"`
	MemberID          string   `json:"MemberId"`
	Severity          string   `json:"Severity,omitempty"`
	MessageSeverity   string   `json:"MessageSeverity,omitempty"`
	Message           string   `json:"Message"`
	MessageID         string   `json:"MessageId"`
	MessageArgs       []string `json:"MessageArgs"`
	Resolution        string   `json:"Resolution,omitempty"`
	Context           string   `json:"Context,omitempty"`
	OriginOfCondition *ODataID `json:"OriginOfCondition,omitempty"`
}

// MetricReportBody is the payload for MetricReport subscriptions.
type MetricReportBody struct {
	ODataType              string        `json:"@odata.type"`
	ODataID                string        `json:"@odata.id"`
	ID                     string        `json:"Id"`
	Name                   string        `json:"Name"`
	Timestamp              string        `json:"Timestamp"`
	Context                string        `json:"Context,omitempty"`
	MetricReportDefinition ODataID       `json:"MetricReportDefinition"`
	MetricValues           []MetricValue `json:"MetricValues"`
}

// MetricValue is one reading in a MetricReportBody.
type MetricValue struct {
	MetricProperty string `json:"MetricProperty"`
	MetricValue    string `json:"MetricValue"`
	Timestamp      string `json:"Timestamp"`
}
