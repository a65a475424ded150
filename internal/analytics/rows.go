package analytics

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/cartrecovery/internal/carts"
)

// CartEventRow mirrors the cart_events BigQuery schema.
type CartEventRow struct {
	EventID               string                `bigquery:"event_id"`
	EventType             string                `bigquery:"event_type"`
	OccurredAt            time.Time             `bigquery:"occurred_at"`
	SessionID             string                `bigquery:"session_id"`
	Identity              string                `bigquery:"identity"`
	State                 string                `bigquery:"state"`
	PreviousState         cbigquery.NullString  `bigquery:"previous_state"`
	ItemCount             int64                 `bigquery:"item_count"`
	TotalValueMinor       int64                 `bigquery:"total_value_minor"`
	Currency              string                `bigquery:"currency"`
	SessionCreatedAt      time.Time             `bigquery:"session_created_at"`
	TimeToRecoverySeconds cbigquery.NullFloat64 `bigquery:"time_to_recovery_seconds"`
	Items                 cbigquery.NullJSON    `bigquery:"items"`
}

var (
	schemaOnce sync.Once
	rowSchema  cbigquery.Schema
	schemaErr  error
)

// CartEventSchema returns the schema inferred from CartEventRow.
func CartEventSchema() (cbigquery.Schema, error) {
	schemaOnce.Do(func() {
		rowSchema, schemaErr = cbigquery.InferSchema(CartEventRow{})
	})
	return rowSchema, schemaErr
}

// RowFromEvent flattens a cart event into a BigQuery row.
func RowFromEvent(evt carts.Event, currencyCode string) (CartEventRow, error) {
	data, err := carts.EventData(evt, currencyCode)
	if err != nil {
		return CartEventRow{}, err
	}
	items, err := EncodeJSON(data.Items)
	if err != nil {
		return CartEventRow{}, fmt.Errorf("encode items: %w", err)
	}

	row := CartEventRow{
		EventID:          evt.ID.String(),
		EventType:        evt.Type.String(),
		OccurredAt:       evt.OccurredAt.UTC(),
		SessionID:        data.SessionID.String(),
		Identity:         data.Email,
		State:            data.State,
		ItemCount:        int64(len(data.Items)),
		TotalValueMinor:  data.TotalValue,
		Currency:         data.Currency,
		SessionCreatedAt: data.CreatedAt,
		Items:            items,
	}
	if data.PreviousState != "" {
		row.PreviousState = cbigquery.NullString{StringVal: data.PreviousState, Valid: true}
	}
	if d, ok := evt.Session.TimeToRecovery(); ok {
		row.TimeToRecoverySeconds = cbigquery.NullFloat64{Float64: d.Seconds(), Valid: true}
	}
	return row, nil
}

// EncodeJSON serializes the payload so it can be stored in a BigQuery JSON column.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case json.RawMessage:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}

	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}
