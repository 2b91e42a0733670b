package handlers

import (
	"errors"
	"net/http"

	"github.com/telhawk-systems/eventd/internal/eventservice"
	"github.com/telhawk-systems/eventd/internal/httputil"
	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// SubscriptionsHandler handles /redfish/v1/EventService/Subscriptions.
func (h *Handler) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListSubscriptions(w, r)
	case http.MethodPost:
		h.CreateSubscription(w, r)
	default:
		h.methodNotAllowed(w, "GET, POST")
	}
}

// SubscriptionHandler handles /redfish/v1/EventService/Subscriptions/{id}.
func (h *Handler) SubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := extractIDFromPath(r.URL.Path, models.SubscriptionsPath)
	if id == "" {
		h.SubscriptionsHandler(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetSubscription(w, r, id)
	case http.MethodDelete:
		h.DeleteSubscription(w, r, id)
	default:
		h.methodNotAllowed(w, "GET, DELETE")
	}
}

// ListSubscriptions handles GET /redfish/v1/EventService/Subscriptions.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, subscription.Spec{})
		return
	}

	members := make([]models.ODataID, 0, len(records))
	for _, rec := range records {
		members = append(members, models.ODataID{ODataID: models.SubscriptionPath(rec.ID)})
	}
	httputil.WriteJSON(w, http.StatusOK, models.Collection{
		ODataID:      models.SubscriptionsPath,
		ODataType:    models.EventDestinationCollection,
		Name:         "Event Destination Collection",
		Members:      members,
		MembersCount: len(members),
	})
}

// CreateSubscription handles POST /redfish/v1/EventService/Subscriptions.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeMessage(w, http.StatusBadRequest, "MalformedJSON")
		return
	}
	if req.Destination == "" {
		h.writeMessage(w, http.StatusBadRequest, "PropertyMissing", "Destination")
		return
	}
	if req.Protocol == "" {
		h.writeMessage(w, http.StatusBadRequest, "PropertyMissing", "Protocol")
		return
	}

	spec := specFromRequest(req)
	if spec.SubscriptionType != "" && spec.SubscriptionType != subscription.TypeRedfishEvent {
		h.writeMessage(w, http.StatusBadRequest, "PropertyValueNotInList", spec.SubscriptionType, "SubscriptionType")
		return
	}

	rec, err := h.svc.Subscribe(r.Context(), spec)
	if err != nil {
		h.writeServiceError(w, err, spec)
		return
	}

	w.Header().Set("Location", models.SubscriptionPath(rec.ID))
	httputil.WriteJSON(w, http.StatusCreated, destinationResource(rec))
}

// GetSubscription handles GET /redfish/v1/EventService/Subscriptions/{id}.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, eventservice.ErrNotFound) {
			h.writeMessage(w, http.StatusNotFound, "ResourceNotFound", "EventDestination", id)
			return
		}
		h.writeServiceError(w, err, subscription.Spec{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, destinationResource(rec))
}

// DeleteSubscription handles DELETE /redfish/v1/EventService/Subscriptions/{id}.
// Deleting a streaming subscription closes its connection.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Unsubscribe(r.Context(), id); err != nil {
		if errors.Is(err, eventservice.ErrNotFound) {
			h.writeMessage(w, http.StatusNotFound, "ResourceNotFound", "EventDestination", id)
			return
		}
		h.writeServiceError(w, err, subscription.Spec{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func specFromRequest(req models.CreateSubscriptionRequest) subscription.Spec {
	spec := subscription.Spec{
		Destination:      req.Destination,
		Protocol:         req.Protocol,
		Context:          req.Context,
		EventFormatType:  subscription.FormatType(req.EventFormatType),
		SubscriptionType: req.SubscriptionType,
		RetryPolicy:      req.DeliveryRetryPolicy,
		Filter: subscription.Filter{
			RegistryPrefixes: req.RegistryPrefixes,
			MessageIDs:       req.MessageIDs,
			ResourceTypes:    req.ResourceTypes,
		},
	}
	for _, o := range req.OriginResources {
		spec.OriginResources = append(spec.OriginResources, o.ODataID)
	}
	for _, d := range req.MetricReportDefinitions {
		spec.MetricReportDefinitions = append(spec.MetricReportDefinitions, d.ODataID)
	}
	for _, hdrs := range req.HTTPHeaders {
		for k, v := range hdrs {
			if spec.HTTPHeaders == nil {
				spec.HTTPHeaders = make(map[string]string)
			}
			spec.HTTPHeaders[k] = v
		}
	}
	return spec
}

// destinationResource renders rec. HttpHeaders are write-only and always read
// back empty.
func destinationResource(rec subscription.Record) models.EventDestination {
	return models.EventDestination{
		ODataID:                 models.SubscriptionPath(rec.ID),
		ODataType:               models.EventDestinationType,
		ID:                      rec.ID,
		Name:                    "Event Destination " + rec.ID,
		Destination:             rec.Destination,
		Protocol:                rec.Protocol,
		Context:                 rec.Context,
		EventFormatType:         string(rec.EventFormatType),
		SubscriptionType:        rec.SubscriptionType,
		DeliveryRetryPolicy:     rec.RetryPolicy,
		RegistryPrefixes:        nonNil(rec.RegistryPrefixes),
		MessageIDs:              nonNil(rec.MessageIDs),
		ResourceTypes:           nonNil(rec.ResourceTypes),
		OriginResources:         links(rec.OriginResources),
		MetricReportDefinitions: links(rec.MetricReportDefinitions),
		HTTPHeaders:             []map[string]string{},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func links(uris []string) []models.ODataID {
	out := make([]models.ODataID, 0, len(uris))
	for _, u := range uris {
		out = append(out, models.ODataID{ODataID: u})
	}
	return out
}
