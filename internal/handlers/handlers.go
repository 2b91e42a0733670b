// Package handlers provides the HTTP handlers for the Redfish EventService.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/telhawk-systems/eventd/internal/eventservice"
	"github.com/telhawk-systems/eventd/internal/httputil"
	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/messaging"
	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

// baseRegistry prefixes every error message id returned by the API.
const baseRegistry = "Base.1.16."

// EventService is the part of eventservice.Service the handlers use.
type EventService interface {
	Subscribe(ctx context.Context, spec subscription.Spec) (subscription.Record, error)
	OpenStream(ctx context.Context, spec subscription.Spec, stream subscription.Stream) (string, error)
	Unsubscribe(ctx context.Context, id string) error
	CloseStream(id string)
	List(ctx context.Context) ([]subscription.Record, error)
	Get(ctx context.Context, id string) (subscription.Record, error)
	Config(ctx context.Context) (eventservice.Config, error)
	SetConfig(ctx context.Context, patch eventservice.ConfigPatch) (eventservice.Config, error)
	SubmitTestEvent(ctx context.Context, ev subscription.EventRecord) (int, error)
}

var _ EventService = (*eventservice.Service)(nil)

// Handler provides HTTP handlers for the event service.
type Handler struct {
	svc          EventService
	catalog      *message.Catalog
	messaging    messaging.Client
	streamBuffer int
	logger       *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(svc EventService, catalog *message.Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{svc: svc, catalog: catalog, streamBuffer: 64, logger: logger}
}

// WithMessaging reports the broker connection on /healthz.
func (h *Handler) WithMessaging(client messaging.Client) *Handler {
	h.messaging = client
	return h
}

// WithStreamBuffer sets how many envelopes an SSE or WebSocket client may
// fall behind before events are dropped.
func (h *Handler) WithStreamBuffer(n int) *Handler {
	if n > 0 {
		h.streamBuffer = n
	}
	return h
}

// =============================================================================
// Helper Methods
// =============================================================================

// extractIDFromPath extracts an ID from a URL path like /Subscriptions/{id}.
func extractIDFromPath(path, prefix string) string {
	remaining := strings.TrimPrefix(path, prefix)
	remaining = strings.TrimPrefix(remaining, "/")

	parts := strings.Split(remaining, "/")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// writeMessage renders a Base registry message as a Redfish error.
func (h *Handler) writeMessage(w http.ResponseWriter, status int, key string, args ...string) {
	id := baseRegistry + key
	if h.catalog != nil {
		if f, err := h.catalog.Format(id, args); err == nil {
			httputil.WriteExtendedError(w, status, httputil.ExtendedInfo{
				MessageID:  f.MessageID,
				Message:    f.Message,
				Severity:   f.Severity,
				Resolution: f.Resolution,
			})
			return
		}
	}
	httputil.WriteError(w, status, id, key)
}

// writeServiceError maps service and validation errors onto Redfish messages.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, spec subscription.Spec) {
	switch {
	case errors.Is(err, eventservice.ErrDuplicateDestination):
		h.writeMessage(w, http.StatusConflict, "ResourceAlreadyExists", "EventDestination", "Destination", spec.Destination)
	case errors.Is(err, eventservice.ErrTooManySubscriptions):
		h.writeMessage(w, http.StatusForbidden, "EventSubscriptionLimitExceeded")
	case errors.Is(err, subscription.ErrInvalidDestination):
		h.writeMessage(w, http.StatusBadRequest, "PropertyValueFormatError", spec.Destination, "Destination")
	case errors.Is(err, subscription.ErrUnsupportedProtocol):
		h.writeMessage(w, http.StatusBadRequest, "PropertyValueNotInList", spec.Protocol, "Protocol")
	case errors.Is(err, subscription.ErrInvalidSpec):
		httputil.WriteError(w, http.StatusBadRequest, baseRegistry+"GeneralError", err.Error())
	case errors.Is(err, eventservice.ErrLoopStopped):
		h.writeMessage(w, http.StatusServiceUnavailable, "ServiceShuttingDown")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeMessage(w, http.StatusServiceUnavailable, "ServiceShuttingDown")
	default:
		h.logger.Error("event service request failed", logging.Error(err))
		h.writeMessage(w, http.StatusInternalServerError, "InternalError")
	}
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	httputil.WriteError(w, http.StatusMethodNotAllowed, baseRegistry+"GeneralError", "Method Not Allowed")
}

// =============================================================================
// Health Check Handlers
// =============================================================================

// HealthCheck handles GET /healthz. A disconnected broker degrades the
// service but does not fail the probe; the log feed still works.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "ok",
		Service:   "eventd",
		Messaging: messaging.CheckClientHealth(h.messaging),
	}
	if h.messaging != nil && !resp.Messaging.Connected {
		resp.Status = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
