package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDecode marks envelopes or payloads that can never be parsed. Consumers
// route these to the dead-letter queue instead of retrying.
var ErrDecode = errors.New("decode failure")

// Event types
const (
	TypeOrderCreated       = "ORDER_CREATED"
	TypePaymentCompleted   = "PAYMENT_COMPLETED"
	TypePaymentFailed      = "PAYMENT_FAILED"
	TypeProductLiked       = "PRODUCT_LIKED"
	TypeProductUnliked     = "PRODUCT_UNLIKED"
	TypeProductViewed      = "PRODUCT_VIEWED"
	TypeProductListBrowsed = "PRODUCT_LIST_BROWSED"
)

// Envelope is the canonical representation of one business fact. It is used
// both for in-process delivery on the local bus and for cross-service
// transport. Envelopes are immutable once created; AggregateID is the
// partition key on the channel.
type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// New wraps a typed payload into an envelope with a fresh event id.
func New(eventType, aggregateID string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     raw,
	}, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a wire message back into an envelope. A failure here
// is fatal for the message and should be routed to the dead-letter store.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: envelope missing event_id or event_type", ErrDecode)
	}
	return env, nil
}

// DecodePayload parses the type-specific payload into dst.
func (e Envelope) DecodePayload(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrDecode, e.EventType, err)
	}
	return nil
}
