package cli

import (
	"fmt"
	"time"

	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/enums"
	"github.com/angelmondragon/cartrecovery/pkg/types"
)

// StatsView is the operator-facing rendering of carts.Stats.
type StatsView struct {
	ComputedAt                string `json:"computedAt" yaml:"computed_at"`
	TotalTracked              int    `json:"totalTracked" yaml:"total_tracked"`
	Active                    int    `json:"active" yaml:"active"`
	Abandoned                 int    `json:"abandoned" yaml:"abandoned"`
	Recovered                 int    `json:"recovered" yaml:"recovered"`
	Expired                   int    `json:"expired" yaml:"expired"`
	RecoveredAfterAbandonment int    `json:"recoveredAfterAbandonment" yaml:"recovered_after_abandonment"`
	RecoveredDirect           int    `json:"recoveredDirect" yaml:"recovered_direct"`
	RecoveryRate              string `json:"recoveryRate" yaml:"recovery_rate"`
	AverageTimeToRecovery     string `json:"averageTimeToRecovery,omitempty" yaml:"average_time_to_recovery,omitempty"`
	AbandonedValue            string `json:"abandonedValue" yaml:"abandoned_value"`
	ActiveValue               string `json:"activeValue" yaml:"active_value"`
}

type ItemView struct {
	ProductID string `json:"productId" yaml:"product_id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
	UnitPrice string `json:"unitPrice" yaml:"unit_price"`
	Subtotal  string `json:"subtotal" yaml:"subtotal"`
}

type SessionView struct {
	ID            string     `json:"id" yaml:"id"`
	Email         string     `json:"email" yaml:"email"`
	DisplayName   string     `json:"displayName,omitempty" yaml:"display_name,omitempty"`
	State         string     `json:"state" yaml:"state"`
	Items         []ItemView `json:"items" yaml:"items"`
	Total         string     `json:"total" yaml:"total"`
	CreatedAt     string     `json:"createdAt" yaml:"created_at"`
	LastUpdatedAt string     `json:"lastUpdatedAt" yaml:"last_updated_at"`
	AbandonedAt   string     `json:"abandonedAt,omitempty" yaml:"abandoned_at,omitempty"`
	RecoveredAt   string     `json:"recoveredAt,omitempty" yaml:"recovered_at,omitempty"`
	ExpiredAt     string     `json:"expiredAt,omitempty" yaml:"expired_at,omitempty"`
}

type TransitionView struct {
	SessionID string `json:"sessionId" yaml:"session_id"`
	Email     string `json:"email" yaml:"email"`
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	At        string `json:"at" yaml:"at"`
}

type SweepView struct {
	Transitions []TransitionView `json:"transitions" yaml:"transitions"`
}

func newStatsView(s carts.Stats, currency string) (StatsView, error) {
	abandoned, err := types.FormatMinor(s.TotalAbandonedValue, currency)
	if err != nil {
		return StatsView{}, err
	}
	active, err := types.FormatMinor(s.TotalActiveValue, currency)
	if err != nil {
		return StatsView{}, err
	}
	v := StatsView{
		ComputedAt:                formatTime(s.ComputedAt),
		TotalTracked:              s.TotalTracked,
		Active:                    s.CountByState[enums.CartSessionStateActive],
		Abandoned:                 s.CountByState[enums.CartSessionStateAbandoned],
		Recovered:                 s.CountByState[enums.CartSessionStateRecovered],
		Expired:                   s.CountByState[enums.CartSessionStateExpired],
		RecoveredAfterAbandonment: s.RecoveredAfterAbandonment,
		RecoveredDirect:           s.RecoveredDirect,
		RecoveryRate:              fmt.Sprintf("%.2f%%", s.RecoveryRate*100),
		AbandonedValue:            abandoned,
		ActiveValue:               active,
	}
	if s.AverageTimeToRecovery != nil {
		v.AverageTimeToRecovery = s.AverageTimeToRecovery.Round(time.Second).String()
	}
	return v, nil
}

func newSessionView(s carts.CartSession, currency string) (SessionView, error) {
	total, err := types.FormatMinor(s.TotalValue(), currency)
	if err != nil {
		return SessionView{}, err
	}
	items := make([]ItemView, 0, len(s.Items))
	for _, it := range s.Items {
		unit, err := types.FormatMinor(it.UnitPrice, currency)
		if err != nil {
			return SessionView{}, err
		}
		subtotal, err := types.FormatMinor(it.Subtotal(), currency)
		if err != nil {
			return SessionView{}, err
		}
		items = append(items, ItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: unit,
			Subtotal:  subtotal,
		})
	}
	return SessionView{
		ID:            s.ID.String(),
		Email:         s.Identity,
		DisplayName:   s.DisplayName,
		State:         s.State.String(),
		Items:         items,
		Total:         total,
		CreatedAt:     formatTime(s.CreatedAt),
		LastUpdatedAt: formatTime(s.LastUpdatedAt),
		AbandonedAt:   formatTimePtr(s.AbandonedAt),
		RecoveredAt:   formatTimePtr(s.RecoveredAt),
		ExpiredAt:     formatTimePtr(s.ExpiredAt),
	}, nil
}

func newSweepView(transitions []carts.Transition) SweepView {
	v := SweepView{Transitions: make([]TransitionView, 0, len(transitions))}
	for _, t := range transitions {
		v.Transitions = append(v.Transitions, TransitionView{
			SessionID: t.SessionID.String(),
			Email:     t.Identity,
			From:      t.From.String(),
			To:        t.To.String(),
			At:        formatTime(t.At),
		})
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
