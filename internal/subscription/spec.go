package subscription

import (
	"fmt"
	"strings"
)

const maxContextLen = 256

// Normalize fills defaults and validates the fields that do not depend on
// registry state. Push specs get their destination parsed by the caller.
func (s *Spec) Normalize() error {
	if s.SubscriptionType == "" {
		s.SubscriptionType = TypeRedfishEvent
	}
	if s.EventFormatType == "" {
		s.EventFormatType = FormatEvent
	}
	if s.RetryPolicy == "" {
		s.RetryPolicy = PolicyTerminateAfterRetries
	}

	switch s.SubscriptionType {
	case TypeRedfishEvent:
		if s.Protocol == "" {
			return fmt.Errorf("%w: Protocol is required", ErrInvalidSpec)
		}
		if s.Protocol != ProtocolRedfish {
			return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s.Protocol)
		}
	case TypeSSE, TypeWebSocket:
		if s.Protocol == "" {
			s.Protocol = ProtocolRedfish
		}
	default:
		return fmt.Errorf("%w: SubscriptionType %q", ErrInvalidSpec, s.SubscriptionType)
	}

	if !s.EventFormatType.Valid() {
		return fmt.Errorf("%w: EventFormatType %q", ErrInvalidSpec, s.EventFormatType)
	}
	if !ValidPolicy(s.RetryPolicy) {
		return fmt.Errorf("%w: DeliveryRetryPolicy %q", ErrInvalidSpec, s.RetryPolicy)
	}
	if len(s.Context) > maxContextLen {
		return fmt.Errorf("%w: Context longer than %d", ErrInvalidSpec, maxContextLen)
	}
	for k := range s.HTTPHeaders {
		if strings.EqualFold(k, "Content-Type") {
			return fmt.Errorf("%w: header %q cannot be overridden", ErrInvalidSpec, k)
		}
	}
	return nil
}

// IsStream reports whether the spec describes a streaming subscription.
func (s *Spec) IsStream() bool {
	return s.SubscriptionType == TypeSSE || s.SubscriptionType == TypeWebSocket
}
