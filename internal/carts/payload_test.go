package carts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
	"github.com/angelmondragon/cartrecovery/pkg/events"
)

func TestEventDataFlattensSession(t *testing.T) {
	s := activeSession("ada@example.com", baseTime)
	s.DisplayName = "Ada"
	tr, err := transition(&s, enums.CartSessionStateAbandoned, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	evt := EventForTransition(tr)

	data, err := EventData(evt, "usd")
	if err != nil {
		t.Fatalf("EventData: %v", err)
	}
	if data.Email != s.Identity || data.SessionID != s.ID {
		t.Fatalf("unexpected identity fields: %+v", data)
	}
	if data.State != "abandoned" || data.PreviousState != "active" {
		t.Fatalf("unexpected states: %s <- %s", data.State, data.PreviousState)
	}
	if data.TotalValue != s.TotalValue() {
		t.Fatalf("expected total %d, got %d", s.TotalValue(), data.TotalValue)
	}
	if data.Currency != "USD" {
		t.Fatalf("expected USD, got %s", data.Currency)
	}
	if len(data.Items) != len(s.Items) {
		t.Fatalf("expected %d items, got %d", len(s.Items), len(data.Items))
	}
}

func TestEventDataRejectsBadCurrency(t *testing.T) {
	evt := Event{Type: enums.CartEventTracked, Session: activeSession("ada@example.com", baseTime), OccurredAt: baseTime}
	if _, err := EventData(evt, "dollars"); err == nil {
		t.Fatal("expected currency error")
	}
}

func TestEventEnvelopeRoundTrip(t *testing.T) {
	s := activeSession("ada@example.com", baseTime)
	evt := Event{
		ID:         NewEventID(s.ID, enums.CartEventTracked, baseTime),
		Type:       enums.CartEventTracked,
		Session:    s,
		OccurredAt: baseTime,
	}
	env, err := EventEnvelope(evt, "USD")
	if err != nil {
		t.Fatalf("EventEnvelope: %v", err)
	}
	if env.EventType != "cart_tracked" || env.EventID != evt.ID.String() {
		t.Fatalf("unexpected envelope header: %+v", env)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded events.PayloadEnvelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var data events.CartEventData
	if err := decoded.DecodeData(&data); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if data.PreviousState != "" {
		t.Fatalf("expected no previous state for tracked event, got %q", data.PreviousState)
	}
}
