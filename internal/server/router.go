// Package server provides HTTP server setup for eventd.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/eventd/internal/handlers"
	"github.com/telhawk-systems/eventd/internal/middleware"
	"github.com/telhawk-systems/eventd/internal/models"
)

// NewRouter constructs a ServeMux with the EventService routes registered.
func NewRouter(h *handlers.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// EventService
	mux.HandleFunc(models.EventServicePath, h.EventServiceHandler)
	mux.HandleFunc(models.SubscriptionsPath, h.SubscriptionsHandler)
	mux.HandleFunc(models.SubscriptionsPath+"/", h.SubscriptionHandler)
	mux.HandleFunc(models.SubmitTestEventPath, h.SubmitTestEvent)

	// Streaming subscriptions
	mux.HandleFunc(models.SSEPath, h.ServerSentEvents)
	mux.HandleFunc(models.WebSocketPath, h.WebSocket)

	return middleware.RequestID(middleware.AccessLog(logger)(mux))
}
