package carts

import (
	"time"

	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/types"
)

type cartRequest struct {
	Action string            `json:"action" validate:"required"`
	Email  string            `json:"email" validate:"required,email,max=320"`
	Name   string            `json:"name,omitempty" validate:"max=200"`
	Items  []cartItemPayload `json:"items,omitempty" validate:"max=500,dive"`
}

// Item values are passed through unvalidated so the normalizer can report
// dropped lines as warnings instead of failing the whole request.
type cartItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty" validate:"max=200"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func (p cartRequest) rawItems() []carts.RawItem {
	if p.Items == nil {
		return nil
	}
	out := make([]carts.RawItem, len(p.Items))
	for i, item := range p.Items {
		out[i] = carts.RawItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}

type moneyResponse struct {
	Minor    int64  `json:"minor"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func newMoneyResponse(minor int64, currencyCode string) moneyResponse {
	resp := moneyResponse{Minor: minor, Currency: currencyCode}
	if m, err := types.MoneyFromMinor(minor, currencyCode); err == nil {
		resp.Amount = m.Decimal()
		resp.Currency = m.Currency.String()
	}
	return resp
}

type lineItemResponse struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name,omitempty"`
	Quantity  int           `json:"quantity"`
	UnitPrice moneyResponse `json:"unitPrice"`
	Subtotal  moneyResponse `json:"subtotal"`
}

type sessionResponse struct {
	ID            string             `json:"id"`
	Email         string             `json:"email"`
	Name          string             `json:"name,omitempty"`
	State         string             `json:"state"`
	Items         []lineItemResponse `json:"items"`
	Total         moneyResponse      `json:"total"`
	CreatedAt     time.Time          `json:"createdAt"`
	LastUpdatedAt time.Time          `json:"lastUpdatedAt"`
	AbandonedAt   *time.Time         `json:"abandonedAt,omitempty"`
	RecoveredAt   *time.Time         `json:"recoveredAt,omitempty"`
	ExpiredAt     *time.Time         `json:"expiredAt,omitempty"`
}

func newSessionResponse(s carts.CartSession, currencyCode string) sessionResponse {
	items := make([]lineItemResponse, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, lineItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: newMoneyResponse(item.UnitPrice, currencyCode),
			Subtotal:  newMoneyResponse(item.Subtotal(), currencyCode),
		})
	}
	return sessionResponse{
		ID:            s.ID.String(),
		Email:         s.Identity,
		Name:          s.DisplayName,
		State:         s.State.String(),
		Items:         items,
		Total:         newMoneyResponse(s.TotalValue(), currencyCode),
		CreatedAt:     s.CreatedAt.UTC(),
		LastUpdatedAt: s.LastUpdatedAt.UTC(),
		AbandonedAt:   utcPtr(s.AbandonedAt),
		RecoveredAt:   utcPtr(s.RecoveredAt),
		ExpiredAt:     utcPtr(s.ExpiredAt),
	}
}

type transitionResponse struct {
	SessionID string    `json:"sessionId"`
	Email     string    `json:"email"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

func newTransitionResponses(transitions []carts.Transition) []transitionResponse {
	out := make([]transitionResponse, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, transitionResponse{
			SessionID: t.SessionID.String(),
			Email:     t.Identity,
			From:      t.From.String(),
			To:        t.To.String(),
			At:        t.At.UTC(),
		})
	}
	return out
}

type upsertResponse struct {
	Action         string                    `json:"action"`
	Session        *sessionResponse          `json:"session,omitempty"`
	Created        bool                      `json:"created"`
	Promoted       bool                      `json:"promoted"`
	ContentChanged bool                      `json:"contentChanged"`
	Dropped        bool                      `json:"dropped"`
	Warnings       []carts.ValidationWarning `json:"warnings"`
	Transitions    []transitionResponse      `json:"transitions"`
}

func newUpsertResponse(action string, res carts.UpsertResult, currencyCode string) upsertResponse {
	resp := upsertResponse{
		Action:         action,
		Created:        res.Created,
		Promoted:       res.Promoted,
		ContentChanged: res.ContentChanged,
		Dropped:        res.Dropped,
		Warnings:       res.Warnings,
		Transitions:    newTransitionResponses(res.Transitions),
	}
	if resp.Warnings == nil {
		resp.Warnings = []carts.ValidationWarning{}
	}
	if !res.Dropped {
		session := newSessionResponse(res.Session, currencyCode)
		resp.Session = &session
	}
	return resp
}

type recoveryResponse struct {
	Action     string              `json:"action"`
	Outcome    string              `json:"outcome"`
	Session    *sessionResponse    `json:"session,omitempty"`
	Transition *transitionResponse `json:"transition,omitempty"`
}

func newRecoveryResponse(action string, res carts.RecoveryResult, currencyCode string) recoveryResponse {
	resp := recoveryResponse{Action: action, Outcome: string(res.Outcome)}
	if res.Session != nil {
		session := newSessionResponse(*res.Session, currencyCode)
		resp.Session = &session
	}
	if res.Transition != nil {
		t := newTransitionResponses([]carts.Transition{*res.Transition})[0]
		resp.Transition = &t
	}
	return resp
}

type statsResponse struct {
	TotalTracked                 int            `json:"totalTracked"`
	CountByState                 map[string]int `json:"countByState"`
	RecoveredAfterAbandonment    int            `json:"recoveredAfterAbandonment"`
	RecoveredDirect              int            `json:"recoveredDirect"`
	RecoveryRate                 float64        `json:"recoveryRate"`
	AverageTimeToRecoverySeconds *float64       `json:"averageTimeToRecoverySeconds"`
	TotalAbandonedValue          moneyResponse  `json:"totalAbandonedValue"`
	TotalActiveValue             moneyResponse  `json:"totalActiveValue"`
	ComputedAt                   time.Time      `json:"computedAt"`
}

func newStatsResponse(s carts.Stats, currencyCode string) statsResponse {
	counts := make(map[string]int, len(s.CountByState))
	for state, n := range s.CountByState {
		counts[state.String()] = n
	}
	resp := statsResponse{
		TotalTracked:              s.TotalTracked,
		CountByState:              counts,
		RecoveredAfterAbandonment: s.RecoveredAfterAbandonment,
		RecoveredDirect:           s.RecoveredDirect,
		RecoveryRate:              s.RecoveryRate,
		TotalAbandonedValue:       newMoneyResponse(s.TotalAbandonedValue, currencyCode),
		TotalActiveValue:          newMoneyResponse(s.TotalActiveValue, currencyCode),
		ComputedAt:                s.ComputedAt.UTC(),
	}
	if s.AverageTimeToRecovery != nil {
		secs := s.AverageTimeToRecovery.Seconds()
		resp.AverageTimeToRecoverySeconds = &secs
	}
	return resp
}

type removeResponse struct {
	Email   string `json:"email"`
	Removed bool   `json:"removed"`
}

type sweepResponse struct {
	Transitions []transitionResponse `json:"transitions"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
