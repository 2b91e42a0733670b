package eventservice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/message"
	"github.com/telhawk-systems/eventd/internal/subscription"
)

type fakeTransport struct {
	submitted []subscription.Delivery
	policies  map[string][2]any
	cancelled []string
}

func (f *fakeTransport) Submit(d subscription.Delivery) { f.submitted = append(f.submitted, d) }

func (f *fakeTransport) UpdateRetryPolicy(name string, attempts int, interval time.Duration) {
	if f.policies == nil {
		f.policies = map[string][2]any{}
	}
	f.policies[name] = [2]any{attempts, interval}
}

func (f *fakeTransport) Cancel(id string) { f.cancelled = append(f.cancelled, id) }

func (f *fakeTransport) to(url string) []subscription.Delivery {
	var out []subscription.Delivery
	for _, d := range f.submitted {
		if d.URL == url {
			out = append(out, d)
		}
	}
	return out
}

type fakeFeed struct {
	activations   int
	deactivations int
	err           error
}

func (f *fakeFeed) Activate() error {
	f.activations++
	return f.err
}

func (f *fakeFeed) Deactivate() { f.deactivations++ }

type fakeStream struct {
	sent   [][]byte
	closed bool
}

func (f *fakeStream) Send(p []byte) error {
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *fakeTransport) {
	t.Helper()
	catalog, err := message.Default()
	require.NoError(t, err)
	tr := &fakeTransport{}
	reg := NewRegistry(cfg, subscription.Deps{Transport: tr, Catalog: catalog, Logger: logging.Nop()})
	return reg, tr
}

func enabledConfig() Config {
	return Config{Enabled: true, RetryAttempts: 3, RetryInterval: 30 * time.Second, MaxSubscriptions: 20, MaxStreams: 5}
}

func pushSpec(dest string) subscription.Spec {
	return subscription.Spec{Destination: dest, Protocol: subscription.ProtocolRedfish}
}

func envelope(t *testing.T, payload []byte) subscription.Envelope {
	t.Helper()
	var env subscription.Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}
