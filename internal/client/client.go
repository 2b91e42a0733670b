// Package client is a Go client for the eventd Redfish EventService API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/eventd/internal/models"
)

// APIError is a non-2xx response from eventd.
type APIError struct {
	StatusCode int
	MessageID  string
	Message    string
}

func (e *APIError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("eventd returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("eventd returned %d: %s (%s)", e.StatusCode, e.Message, e.MessageID)
}

type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck // best effort
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Code != "" {
		apiErr.MessageID = body.Error.Code
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// GetEventService returns the EventService resource.
func (c *Client) GetEventService(ctx context.Context) (*models.EventService, error) {
	var res models.EventService
	if err := c.doRequest(ctx, http.MethodGet, models.EventServicePath, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PatchEventService updates the writable EventService properties.
func (c *Client) PatchEventService(ctx context.Context, patch models.EventServicePatch) (*models.EventService, error) {
	var res models.EventService
	if err := c.doRequest(ctx, http.MethodPatch, models.EventServicePath, patch, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListSubscriptions fetches the collection and then each member.
func (c *Client) ListSubscriptions(ctx context.Context) ([]models.EventDestination, error) {
	var coll models.Collection
	if err := c.doRequest(ctx, http.MethodGet, models.SubscriptionsPath, nil, &coll); err != nil {
		return nil, err
	}

	out := make([]models.EventDestination, 0, len(coll.Members))
	for _, m := range coll.Members {
		var dest models.EventDestination
		if err := c.doRequest(ctx, http.MethodGet, m.ODataID, nil, &dest); err != nil {
			// A stream may close between the two requests.
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, dest)
	}
	return out, nil
}

// GetSubscription returns one subscription.
func (c *Client) GetSubscription(ctx context.Context, id string) (*models.EventDestination, error) {
	var dest models.EventDestination
	if err := c.doRequest(ctx, http.MethodGet, models.SubscriptionPath(id), nil, &dest); err != nil {
		return nil, err
	}
	return &dest, nil
}

// CreateSubscription registers a push subscription.
func (c *Client) CreateSubscription(ctx context.Context, req models.CreateSubscriptionRequest) (*models.EventDestination, error) {
	var dest models.EventDestination
	if err := c.doRequest(ctx, http.MethodPost, models.SubscriptionsPath, req, &dest); err != nil {
		return nil, err
	}
	return &dest, nil
}

// DeleteSubscription removes a subscription.
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, models.SubscriptionPath(id), nil, nil)
}

// SubmitTestEvent asks the service to send a test event to every Event
// subscriber.
func (c *Client) SubmitTestEvent(ctx context.Context, req models.TestEventRequest) error {
	return c.doRequest(ctx, http.MethodPost, models.SubmitTestEventPath, req, nil)
}
