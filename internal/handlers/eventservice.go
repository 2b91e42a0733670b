package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/telhawk-systems/eventd/internal/eventservice"
	"github.com/telhawk-systems/eventd/internal/httputil"
	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// EventServiceHandler handles /redfish/v1/EventService.
func (h *Handler) EventServiceHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetEventService(w, r)
	case http.MethodPatch:
		h.PatchEventService(w, r)
	default:
		h.methodNotAllowed(w, "GET, PATCH")
	}
}

// GetEventService handles GET /redfish/v1/EventService.
func (h *Handler) GetEventService(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		h.writeServiceError(w, err, subscription.Spec{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.eventServiceResource(cfg))
}

// PatchEventService handles PATCH /redfish/v1/EventService.
func (h *Handler) PatchEventService(w http.ResponseWriter, r *http.Request) {
	var req models.EventServicePatch
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeMessage(w, http.StatusBadRequest, "MalformedJSON")
		return
	}

	patch := eventservice.ConfigPatch{Enabled: req.ServiceEnabled}
	if req.DeliveryRetryAttempts != nil {
		if *req.DeliveryRetryAttempts < 1 {
			h.writeMessage(w, http.StatusBadRequest, "PropertyValueFormatError",
				strconv.Itoa(*req.DeliveryRetryAttempts), "DeliveryRetryAttempts")
			return
		}
		patch.RetryAttempts = req.DeliveryRetryAttempts
	}
	if req.DeliveryRetryIntervalSeconds != nil {
		if *req.DeliveryRetryIntervalSeconds < 1 {
			h.writeMessage(w, http.StatusBadRequest, "PropertyValueFormatError",
				strconv.Itoa(*req.DeliveryRetryIntervalSeconds), "DeliveryRetryIntervalSeconds")
			return
		}
		interval := time.Duration(*req.DeliveryRetryIntervalSeconds) * time.Second
		patch.RetryInterval = &interval
	}

	cfg, err := h.svc.SetConfig(r.Context(), patch)
	if err != nil {
		h.writeServiceError(w, err, subscription.Spec{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.eventServiceResource(cfg))
}

// SubmitTestEvent handles POST .../Actions/EventService.SubmitTestEvent. The
// event goes to every Event subscriber regardless of filters.
func (h *Handler) SubmitTestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, "POST")
		return
	}

	var req models.TestEventRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.writeMessage(w, http.StatusBadRequest, "MalformedJSON")
			return
		}
	}

	ev := subscription.EventRecord{
		EventID:           req.EventID,
		Timestamp:         req.EventTimestamp,
		MessageID:         req.MessageID,
		Args:              req.MessageArgs,
		OriginOfCondition: req.OriginOfCondition,
		Message:           req.Message,
		Severity:          req.MessageSeverity,
	}
	if ev.EventID == "" {
		ev.EventID = "TestID"
	}
	// Without a message text the id is resolved against the registries.
	if ev.MessageID == "" {
		ev.MessageID = "TestEventId"
		if ev.Message == "" {
			ev.Message = "Generated test event"
		}
	}
	if ev.Message != "" && ev.Severity == "" {
		ev.Severity = "OK"
	}

	if _, err := h.svc.SubmitTestEvent(r.Context(), ev); err != nil {
		h.writeServiceError(w, err, subscription.Spec{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventServiceResource(cfg eventservice.Config) models.EventService {
	state := "Enabled"
	if !cfg.Enabled {
		state = "Disabled"
	}
	var prefixes []string
	if h.catalog != nil {
		prefixes = h.catalog.Prefixes()
	}
	if prefixes == nil {
		prefixes = []string{}
	}
	return models.EventService{
		ODataID:                      models.EventServicePath,
		ODataType:                    models.EventServiceType,
		ID:                           "EventService",
		Name:                         "Event Service",
		ServiceEnabled:               cfg.Enabled,
		DeliveryRetryAttempts:        cfg.RetryAttempts,
		DeliveryRetryIntervalSeconds: int(cfg.RetryInterval / time.Second),
		EventFormatTypes:             []string{string(subscription.FormatEvent), string(subscription.FormatMetricReport)},
		RegistryPrefixes:             prefixes,
		ServerSentEventURI:           models.SSEPath,
		SSEFilterPropertiesSupported: models.SSEFilterProperties{
			EventFormatType:        true,
			MessageID:              true,
			MetricReportDefinition: true,
			OriginResource:         true,
			RegistryPrefix:         true,
		},
		Status:        models.Status{State: state, Health: "OK"},
		Subscriptions: models.ODataID{ODataID: models.SubscriptionsPath},
		Actions: map[string]models.ActionTarget{
			models.SubmitTestEventTitle: {Target: models.SubmitTestEventPath},
		},
	}
}
