package carts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

// Store persists cart sessions. Implementations serialise mutations so that
// at most one live session exists per identity.
type Store interface {
	Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error)
	Get(ctx context.Context, identity string) (*CartSession, error)
	Remove(ctx context.Context, identity string) (bool, error)
	All(ctx context.Context) ([]CartSession, error)
	MarkRecovered(ctx context.Context, identity string, now time.Time) (RecoveryResult, error)
	ApplySweep(ctx context.Context, now time.Time, p Policy) ([]Transition, error)
}

// UpsertInput carries a normalized cart for one identity. An empty Cart asks
// the store to expire the live session.
type UpsertInput struct {
	Identity    string
	DisplayName string
	Cart        NormalizedCart
	Action      enums.CartAction
	Now         time.Time
	Policy      Policy
}

// UpsertResult describes what an upsert did to the identity's live session.
type UpsertResult struct {
	Session        CartSession
	Created        bool
	Promoted       bool
	ContentChanged bool
	Transitions    []Transition
	Dropped        bool
	Warnings       []ValidationWarning
}

type RecoveryOutcome string

const (
	RecoveryOutcomeRecovered       RecoveryOutcome = "recovered"
	RecoveryOutcomeNotFound        RecoveryOutcome = "not_found"
	RecoveryOutcomeAlreadyTerminal RecoveryOutcome = "already_terminal"
)

// RecoveryResult is returned by MarkRecovered for every outcome.
type RecoveryResult struct {
	Outcome    RecoveryOutcome
	Session    *CartSession
	Transition *Transition
}

// InvariantViolationError reports more than one live session for an identity.
type InvariantViolationError struct {
	Identity     string
	LiveSessions int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("identity %s has %d live cart sessions", e.Identity, e.LiveSessions)
}

// applyUpsert computes the next state of an identity given its live session,
// which may be nil. The returned session is what the store must persist.
func applyUpsert(live *CartSession, in UpsertInput, newID func() uuid.UUID) (UpsertResult, error) {
	if in.Cart.IsEmpty() {
		if live == nil {
			return UpsertResult{}, &EmptyCartError{Warnings: in.Cart.Warnings}
		}
		next := live.Clone()
		t, err := transition(&next, enums.CartSessionStateExpired, in.Now)
		if err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{
			Session:        next,
			ContentChanged: true,
			Transitions:    []Transition{t},
			Dropped:        in.Policy.DropsExpired(),
		}, nil
	}

	if live == nil {
		session := CartSession{
			ID:            newID(),
			Identity:      in.Identity,
			DisplayName:   in.DisplayName,
			Items:         cloneItems(in.Cart.Items),
			ContentHash:   in.Cart.ContentHash,
			State:         enums.CartSessionStateActive,
			CreatedAt:     in.Now,
			LastUpdatedAt: in.Now,
		}
		return UpsertResult{
			Session:        session,
			Created:        true,
			Promoted:       in.Action == enums.CartActionUpdate,
			ContentChanged: true,
		}, nil
	}

	next := live.Clone()
	if in.DisplayName != "" {
		next.DisplayName = in.DisplayName
	}
	result := UpsertResult{}
	if next.ContentHash != in.Cart.ContentHash {
		next.Items = cloneItems(in.Cart.Items)
		next.ContentHash = in.Cart.ContentHash
		next.LastUpdatedAt = in.Now
		result.ContentChanged = true
		if next.State == enums.CartSessionStateAbandoned {
			t, err := transition(&next, enums.CartSessionStateActive, in.Now)
			if err != nil {
				return UpsertResult{}, err
			}
			result.Transitions = append(result.Transitions, t)
		}
	} else {
		// Names may differ without a content change.
		next.Items = cloneItems(in.Cart.Items)
	}
	result.Session = next
	return result, nil
}

// applyRecovery moves a live session to recovered.
func applyRecovery(live *CartSession, now time.Time) (CartSession, Transition, error) {
	next := live.Clone()
	t, err := transition(&next, enums.CartSessionStateRecovered, now)
	if err != nil {
		return CartSession{}, Transition{}, err
	}
	return next, t, nil
}

// resolveLiveDuplicates keeps the most recently updated live session and
// returns the rest for removal.
func resolveLiveDuplicates(live []CartSession) (CartSession, []CartSession) {
	keepIdx := 0
	for i := 1; i < len(live); i++ {
		if live[i].LastUpdatedAt.After(live[keepIdx].LastUpdatedAt) {
			keepIdx = i
		}
	}
	discard := make([]CartSession, 0, len(live)-1)
	for i := range live {
		if i != keepIdx {
			discard = append(discard, live[i])
		}
	}
	return live[keepIdx], discard
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
