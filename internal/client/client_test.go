package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/eventservice"
	"github.com/telhawk-systems/eventd/internal/handlers"
	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/server"
	"github.com/telhawk-systems/eventd/internal/store"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

type countingTransport struct{ submitted chan subscription.Delivery }

func (t countingTransport) Submit(d subscription.Delivery)             { t.submitted <- d }
func (countingTransport) UpdateRetryPolicy(string, int, time.Duration) {}
func (countingTransport) Cancel(string)                                {}

func newTestServer(t *testing.T) (*Client, chan subscription.Delivery) {
	t.Helper()
	catalog, err := message.Default()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := eventservice.NewLoop(16, logging.Nop())
	go loop.Run(ctx)

	tr := countingTransport{submitted: make(chan subscription.Delivery, 8)}
	reg := eventservice.NewRegistry(eventservice.Config{Enabled: true, RetryAttempts: 3, RetryInterval: time.Second},
		subscription.Deps{Transport: tr, Catalog: catalog, Logger: logging.Nop()})
	svc := eventservice.NewService(loop, reg, store.NewMemory(), logging.Nop())

	srv := httptest.NewServer(server.NewRouter(handlers.NewHandler(svc, catalog, logging.Nop()), logging.Nop()))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second), tr.submitted
}

func TestClient_SubscriptionRoundTrip(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	created, err := c.CreateSubscription(ctx, models.CreateSubscriptionRequest{
		Destination:      "http://10.0.0.5/events",
		Protocol:         "Redfish",
		RegistryPrefixes: []string{"OpenBMC"},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5/events", created.Destination)

	got, err := c.GetSubscription(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"OpenBMC"}, got.RegistryPrefixes)

	list, err := c.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, c.DeleteSubscription(ctx, created.ID))
	list, err = c.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClient_APIError(t *testing.T) {
	c, _ := newTestServer(t)

	err := c.DeleteSubscription(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Base.1.16.ResourceNotFound", apiErr.MessageID)
	assert.Contains(t, apiErr.Error(), "missing")
}

func TestClient_EventServiceConfig(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	res, err := c.GetEventService(ctx)
	require.NoError(t, err)
	assert.True(t, res.ServiceEnabled)

	attempts := 7
	res, err = c.PatchEventService(ctx, models.EventServicePatch{DeliveryRetryAttempts: &attempts})
	require.NoError(t, err)
	assert.Equal(t, 7, res.DeliveryRetryAttempts)
	assert.True(t, res.ServiceEnabled)
}

func TestClient_SubmitTestEvent(t *testing.T) {
	c, submitted := newTestServer(t)
	ctx := context.Background()

	_, err := c.CreateSubscription(ctx, models.CreateSubscriptionRequest{
		Destination: "http://10.0.0.5/events",
		Protocol:    "Redfish",
	})
	require.NoError(t, err)

	require.NoError(t, c.SubmitTestEvent(ctx, models.TestEventRequest{Message: "ping"}))
	select {
	case d := <-submitted:
		assert.Contains(t, string(d.Payload), `"Message":"ping"`)
	case <-time.After(2 * time.Second):
		t.Fatal("test event not delivered")
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).GetEventService(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Message)
}
