package carts

import (
	"github.com/angelmondragon/cartrecovery/pkg/events"
	"github.com/angelmondragon/cartrecovery/pkg/types"
)

// EventData flattens an event into the payload shape shared by every outbound sink.
func EventData(evt Event, currencyCode string) (events.CartEventData, error) {
	s := evt.Session
	total := s.TotalValue()
	money, err := types.MoneyFromMinor(total, currencyCode)
	if err != nil {
		return events.CartEventData{}, err
	}

	items := make([]events.CartItemData, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, events.CartItemData{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	data := events.CartEventData{
		SessionID:     s.ID,
		Email:         s.Identity,
		DisplayName:   s.DisplayName,
		State:         s.State.String(),
		Items:         items,
		TotalValue:    total,
		Currency:      money.Currency.String(),
		TotalDisplay:  money.String(),
		CreatedAt:     s.CreatedAt.UTC(),
		LastUpdatedAt: s.LastUpdatedAt.UTC(),
	}
	if evt.From != "" {
		data.PreviousState = evt.From.String()
	}
	return data, nil
}

// EventEnvelope wraps EventData in the versioned envelope published to collaborators.
func EventEnvelope(evt Event, currencyCode string) (events.PayloadEnvelope, error) {
	data, err := EventData(evt, currencyCode)
	if err != nil {
		return events.PayloadEnvelope{}, err
	}
	return events.NewEnvelope(evt.ID, evt.Type.String(), evt.OccurredAt, data)
}
