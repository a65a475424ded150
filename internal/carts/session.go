package carts

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

var errBlankIdentity = errors.New("identity is required")

// LineItem is a single product entry inside a normalized cart.
type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns UnitPrice × Quantity in minor currency units.
func (i LineItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// CartSession is the tracked cart of one customer identity.
type CartSession struct {
	ID            uuid.UUID
	Identity      string
	DisplayName   string
	Items         []LineItem
	ContentHash   string
	State         enums.CartSessionState
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	AbandonedAt   *time.Time
	RecoveredAt   *time.Time
	ExpiredAt     *time.Time
}

// TotalValue is derived from the items on every call and never cached.
func (s CartSession) TotalValue() int64 {
	var total int64
	for _, item := range s.Items {
		total += item.Subtotal()
	}
	return total
}

func (s CartSession) IsLive() bool {
	return s.State.IsLive()
}

// RecoveredAfterAbandonment distinguishes reclaimed carts from fast checkouts.
func (s CartSession) RecoveredAfterAbandonment() bool {
	return s.State == enums.CartSessionStateRecovered && s.AbandonedAt != nil
}

// TimeToRecovery reports RecoveredAt − CreatedAt for recovered sessions.
func (s CartSession) TimeToRecovery() (time.Duration, bool) {
	if s.State != enums.CartSessionStateRecovered || s.RecoveredAt == nil {
		return 0, false
	}
	return s.RecoveredAt.Sub(s.CreatedAt), true
}

// Clone returns a deep copy safe to hand outside a store lock.
func (s CartSession) Clone() CartSession {
	out := s
	if s.Items != nil {
		out.Items = make([]LineItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	out.AbandonedAt = cloneTime(s.AbandonedAt)
	out.RecoveredAt = cloneTime(s.RecoveredAt)
	out.ExpiredAt = cloneTime(s.ExpiredAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// CanonicalIdentity trims and lowercases an email so lookups are case-insensitive.
func CanonicalIdentity(raw string) (string, error) {
	identity := strings.ToLower(strings.TrimSpace(raw))
	if identity == "" {
		return "", errBlankIdentity
	}
	return identity, nil
}
