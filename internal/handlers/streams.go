package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/stream"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// ServerSentEvents handles GET /redfish/v1/EventService/SSE. The connection
// is a subscription for as long as the client keeps it open.
func (h *Handler) ServerSentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, "GET")
		return
	}

	spec, ok := h.streamSpec(w, r.URL.Query(), subscription.TypeSSE)
	if !ok {
		return
	}
	conn := stream.NewConn(stream.KindSSE, h.streamBuffer)
	id, err := h.svc.OpenStream(r.Context(), spec, conn)
	if err != nil {
		h.writeServiceError(w, err, spec)
		return
	}
	defer h.svc.CloseStream(id)

	h.logger.Info("SSE subscriber connected", logging.SubscriptionID(id))
	stream.ServeSSE(w, r, conn, h.logger)
	h.logger.Info("SSE subscriber disconnected", logging.SubscriptionID(id))
}

// WebSocket handles GET /redfish/v1/EventService/WebSocket.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, "GET")
		return
	}

	spec, ok := h.streamSpec(w, r.URL.Query(), subscription.TypeWebSocket)
	if !ok {
		return
	}
	conn := stream.NewConn(stream.KindWebSocket, h.streamBuffer)
	id, err := h.svc.OpenStream(r.Context(), spec, conn)
	if err != nil {
		h.writeServiceError(w, err, spec)
		return
	}
	defer h.svc.CloseStream(id)

	// Upgrade writes its own error response.
	ws, err := stream.Upgrade(w, r)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.SubscriptionID(id), logging.Error(err))
		return
	}

	h.logger.Info("websocket subscriber connected", logging.SubscriptionID(id))
	stream.ServeWebSocket(ws, conn, h.logger)
	h.logger.Info("websocket subscriber disconnected", logging.SubscriptionID(id))
}

// streamSpec builds a streaming subscription from the filter query
// parameters. Each parameter may repeat or carry a comma-separated list.
func (h *Handler) streamSpec(w http.ResponseWriter, q url.Values, kind string) (subscription.Spec, bool) {
	spec := subscription.Spec{
		SubscriptionType: kind,
		EventFormatType:  subscription.FormatType(q.Get("EventFormatType")),
		Filter: subscription.Filter{
			RegistryPrefixes: queryList(q, "RegistryPrefix"),
			MessageIDs:       queryList(q, "MessageId"),
			OriginResources:  queryList(q, "OriginResource"),
			ResourceTypes:    queryList(q, "ResourceType"),
		},
	}
	if spec.EventFormatType != "" && !spec.EventFormatType.Valid() {
		h.writeMessage(w, http.StatusBadRequest, "PropertyValueNotInList", string(spec.EventFormatType), "EventFormatType")
		return subscription.Spec{}, false
	}
	for _, def := range queryList(q, "MetricReportDefinition") {
		if !strings.HasPrefix(def, "/") {
			def = subscription.DefinitionURI(def)
		}
		spec.MetricReportDefinitions = append(spec.MetricReportDefinitions, def)
	}
	return spec, true
}

func queryList(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
