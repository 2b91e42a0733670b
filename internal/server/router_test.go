package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/eventservice"
	"github.com/telhawk-systems/eventd/internal/handlers"
	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/middleware"
	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/store"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

type nopTransport struct{}

func (nopTransport) Submit(subscription.Delivery)                 {}
func (nopTransport) UpdateRetryPolicy(string, int, time.Duration) {}
func (nopTransport) Cancel(string)                                {}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	catalog, err := message.Default()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := eventservice.NewLoop(16, logging.Nop())
	go loop.Run(ctx)

	reg := eventservice.NewRegistry(eventservice.Config{Enabled: true, RetryAttempts: 3, RetryInterval: time.Second},
		subscription.Deps{Transport: nopTransport{}, Catalog: catalog, Logger: logging.Nop()})
	svc := eventservice.NewService(loop, reg, store.NewMemory(), logging.Nop())
	return NewRouter(handlers.NewHandler(svc, catalog, logging.Nop()), logging.Nop())
}

func TestRouter_Endpoints(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, models.EventServicePath, "", http.StatusOK},
		{http.MethodGet, models.SubscriptionsPath, "", http.StatusOK},
		{http.MethodGet, models.SubscriptionsPath + "/", "", http.StatusOK},
		{http.MethodGet, models.SubscriptionPath("missing"), "", http.StatusNotFound},
		{http.MethodPost, models.SubscriptionsPath, `{"Destination":"http://10.0.0.5/","Protocol":"Redfish"}`, http.StatusCreated},
		{http.MethodPost, models.SubmitTestEventPath, "", http.StatusNoContent},
		{http.MethodPost, models.SSEPath, "", http.StatusMethodNotAllowed},
		{http.MethodPost, models.WebSocketPath, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRouter_RequestID(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "req-42", rr.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_MetricsExposeCollectors(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, models.SubmitTestEventPath, nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "eventd_dispatch_total")
}
