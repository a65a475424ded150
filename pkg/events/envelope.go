package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is bumped on breaking payload changes.
const EnvelopeVersion = 1

// PayloadEnvelope is the stable wrapper published for every cart event.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// CartItemData is one line item inside a cart event.
type CartItemData struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// CartEventData is the payload collaborators receive for cart lifecycle events.
type CartEventData struct {
	SessionID     uuid.UUID      `json:"sessionId"`
	Email         string         `json:"email"`
	DisplayName   string         `json:"displayName,omitempty"`
	State         string         `json:"state"`
	PreviousState string         `json:"previousState,omitempty"`
	Items         []CartItemData `json:"items"`
	TotalValue    int64          `json:"totalValue"`
	Currency      string         `json:"currency"`
	TotalDisplay  string         `json:"totalDisplay"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastUpdatedAt time.Time      `json:"lastUpdatedAt"`
}

// NewEnvelope marshals data into a versioned envelope.
func NewEnvelope(eventID uuid.UUID, eventType string, occurredAt time.Time, data any) (PayloadEnvelope, error) {
	if eventID == uuid.Nil {
		return PayloadEnvelope{}, fmt.Errorf("event id is required")
	}
	if eventType == "" {
		return PayloadEnvelope{}, fmt.Errorf("event type is required")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal event data: %w", err)
	}
	return PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    eventID.String(),
		EventType:  eventType,
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	}, nil
}

// DecodeData unmarshals the envelope payload into out.
func (e PayloadEnvelope) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.EventID)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode event %s data: %w", e.EventID, err)
	}
	return nil
}
