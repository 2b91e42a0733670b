// Package models provides the Redfish wire resources served by eventd.
package models

import "github.com/telhawk-systems/eventd/internal/messaging"

// Resource paths.
const (
	EventServicePath     = "/redfish/v1/EventService"
	SubscriptionsPath    = EventServicePath + "/Subscriptions"
	SSEPath              = EventServicePath + "/SSE"
	WebSocketPath        = EventServicePath + "/WebSocket"
	SubmitTestEventPath  = EventServicePath + "/Actions/EventService.SubmitTestEvent"
	SubmitTestEventTitle = "#EventService.SubmitTestEvent"
)

// OData types.
const (
	EventServiceType           = "#EventService.v1_10_0.EventService"
	EventDestinationType       = "#EventDestination.v1_14_0.EventDestination"
	EventDestinationCollection = "#EventDestinationCollection.EventDestinationCollection"
)

// ODataID is a Redfish navigation link.
type ODataID struct {
	ODataID string `json:"@odata.id"`
}

// SubscriptionPath returns the resource path of subscription id.
func SubscriptionPath(id string) string {
	return SubscriptionsPath + "/" + id
}

// =============================================================================
// EventService
// =============================================================================

// Status is the Redfish common Status object.
type Status struct {
	State  string `json:"State"`
	Health string `json:"Health"`
}

// ActionTarget is one entry of an Actions object.
type ActionTarget struct {
	Target string `json:"target"`
}

// SSEFilterProperties lists the query parameters accepted on the SSE URI.
type SSEFilterProperties struct {
	EventFormatType        bool `json:"EventFormatType"`
	MessageID              bool `json:"MessageId"`
	MetricReportDefinition bool `json:"MetricReportDefinition"`
	OriginResource         bool `json:"OriginResource"`
	RegistryPrefix         bool `json:"RegistryPrefix"`
	ResourceType           bool `json:"ResourceType"`
}

// EventService is the /redfish/v1/EventService resource.
type EventService struct {
	ODataID                      string                  `json:"@odata.id"`
	ODataType                    string                  `json:"@odata.type"`
	ID                           string                  `json:"Id"`
	Name                         string                  `json:"Name"`
	ServiceEnabled               bool                    `json:"ServiceEnabled"`
	DeliveryRetryAttempts        int                     `json:"DeliveryRetryAttempts"`
	DeliveryRetryIntervalSeconds int                     `json:"DeliveryRetryIntervalSeconds"`
	EventFormatTypes             []string                `json:"EventFormatTypes"`
	RegistryPrefixes             []string                `json:"RegistryPrefixes"`
	ServerSentEventURI           string                  `json:"ServerSentEventUri"`
	SSEFilterPropertiesSupported SSEFilterProperties     `json:"SSEFilterPropertiesSupported"`
	Status                       Status                  `json:"Status"`
	Subscriptions                ODataID                 `json:"Subscriptions"`
	Actions                      map[string]ActionTarget `json:"Actions"`
}

// EventServicePatch is the PATCH body for the EventService. Absent
// properties are left unchanged.
type EventServicePatch struct {
	ServiceEnabled               *bool `json:"ServiceEnabled,omitempty"`
	DeliveryRetryAttempts        *int  `json:"DeliveryRetryAttempts,omitempty"`
	DeliveryRetryIntervalSeconds *int  `json:"DeliveryRetryIntervalSeconds,omitempty"`
}

// TestEventRequest is the SubmitTestEvent action body.
type TestEventRequest struct {
	EventID           string   `json:"EventId,omitempty"`
	EventTimestamp    string   `json:"EventTimestamp,omitempty"`
	Message           string   `json:"Message,omitempty"`
	MessageID         string   `json:"MessageId,omitempty"`
	MessageArgs       []string `json:"MessageArgs,omitempty"`
	MessageSeverity   string   `json:"MessageSeverity,omitempty"`
	OriginOfCondition string   `json:"OriginOfCondition,omitempty"`
}

// =============================================================================
// EventDestination
// =============================================================================

// EventDestination is one subscription resource.
type EventDestination struct {
	ODataID                 string              `json:"@odata.id"`
	ODataType               string              `json:"@odata.type"`
	ID                      string              `json:"Id"`
	Name                    string              `json:"Name"`
	Destination             string              `json:"Destination"`
	Protocol                string              `json:"Protocol"`
	Context                 string              `json:"Context"`
	EventFormatType         string              `json:"EventFormatType"`
	SubscriptionType        string              `json:"SubscriptionType"`
	DeliveryRetryPolicy     string              `json:"DeliveryRetryPolicy"`
	RegistryPrefixes        []string            `json:"RegistryPrefixes"`
	MessageIDs              []string            `json:"MessageIds"`
	ResourceTypes           []string            `json:"ResourceTypes"`
	OriginResources         []ODataID           `json:"OriginResources"`
	MetricReportDefinitions []ODataID           `json:"MetricReportDefinitions"`
	HTTPHeaders             []map[string]string `json:"HttpHeaders"`
}

// CreateSubscriptionRequest is the POST body for the subscription collection.
type CreateSubscriptionRequest struct {
	Destination             string              `json:"Destination"`
	Protocol                string              `json:"Protocol,omitempty"`
	Context                 string              `json:"Context,omitempty"`
	EventFormatType         string              `json:"EventFormatType,omitempty"`
	SubscriptionType        string              `json:"SubscriptionType,omitempty"`
	DeliveryRetryPolicy     string              `json:"DeliveryRetryPolicy,omitempty"`
	RegistryPrefixes        []string            `json:"RegistryPrefixes,omitempty"`
	MessageIDs              []string            `json:"MessageIds,omitempty"`
	ResourceTypes           []string            `json:"ResourceTypes,omitempty"`
	OriginResources         []ODataID           `json:"OriginResources,omitempty"`
	MetricReportDefinitions []ODataID           `json:"MetricReportDefinitions,omitempty"`
	HTTPHeaders             []map[string]string `json:"HttpHeaders,omitempty"`
}

// Collection is a Redfish resource collection of links.
type Collection struct {
	ODataID      string    `json:"@odata.id"`
	ODataType    string    `json:"@odata.type"`
	Name         string    `json:"Name"`
	Members      []ODataID `json:"Members"`
	MembersCount int       `json:"Members@odata.count"`
}

// =============================================================================
// Health
// =============================================================================

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Messaging messaging.HealthStatus `json:"messaging"`
}
