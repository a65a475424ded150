package carts

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

const (
	DefaultAbandonAfter = time.Hour
	DefaultExpireAfter  = 30 * 24 * time.Hour
)

var allowedTransitions = map[enums.CartSessionState][]enums.CartSessionState{
	enums.CartSessionStateActive: {
		enums.CartSessionStateAbandoned,
		enums.CartSessionStateRecovered,
		enums.CartSessionStateExpired,
	},
	enums.CartSessionStateAbandoned: {
		enums.CartSessionStateActive,
		enums.CartSessionStateRecovered,
		enums.CartSessionStateExpired,
	},
}

// CanTransition reports whether the lifecycle permits moving from one state to another.
func CanTransition(from, to enums.CartSessionState) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition records a single state change. Session holds the snapshot
// taken right after the change was applied.
type Transition struct {
	SessionID uuid.UUID
	Identity  string
	From      enums.CartSessionState
	To        enums.CartSessionState
	At        time.Time
	Session   CartSession
}

// TransitionError is returned when a caller asks for a move the lifecycle forbids.
type TransitionError struct {
	From enums.CartSessionState
	To   enums.CartSessionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cart session cannot move from %s to %s", e.From, e.To)
}

// transition mutates s in place and stamps the timestamp owned by the target state.
func transition(s *CartSession, to enums.CartSessionState, at time.Time) (Transition, error) {
	from := s.State
	if !CanTransition(from, to) {
		return Transition{}, &TransitionError{From: from, To: to}
	}
	switch to {
	case enums.CartSessionStateAbandoned:
		s.AbandonedAt = timePtr(at)
	case enums.CartSessionStateRecovered:
		s.RecoveredAt = timePtr(at)
	case enums.CartSessionStateExpired:
		s.ExpiredAt = timePtr(at)
	}
	s.State = to
	return Transition{
		SessionID: s.ID,
		Identity:  s.Identity,
		From:      from,
		To:        to,
		At:        at,
		Session:   s.Clone(),
	}, nil
}

// Policy holds the time thresholds that drive the sweep.
type Policy struct {
	AbandonAfter time.Duration
	ExpireAfter  time.Duration
	Retention    enums.RetentionPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		AbandonAfter: DefaultAbandonAfter,
		ExpireAfter:  DefaultExpireAfter,
		Retention:    enums.RetentionKeep,
	}
}

func (p Policy) Validate() error {
	if p.AbandonAfter <= 0 {
		return fmt.Errorf("abandon threshold must be positive, got %s", p.AbandonAfter)
	}
	if p.ExpireAfter <= p.AbandonAfter {
		return fmt.Errorf("expire threshold %s must exceed abandon threshold %s", p.ExpireAfter, p.AbandonAfter)
	}
	if p.Retention != "" && !p.Retention.IsValid() {
		return fmt.Errorf("invalid retention policy %q", p.Retention)
	}
	return nil
}

// DropsExpired reports whether expired sessions are deleted after transition.
func (p Policy) DropsExpired() bool {
	return p.Retention == enums.RetentionDrop
}

// advance applies time-based transitions to a live session in place. An
// active session idle beyond both thresholds walks through abandoned first.
func advance(s *CartSession, now time.Time, p Policy) []Transition {
	if !s.IsLive() {
		return nil
	}
	var out []Transition
	idle := now.Sub(s.LastUpdatedAt)
	if s.State == enums.CartSessionStateActive && idle >= p.AbandonAfter {
		t, _ := transition(s, enums.CartSessionStateAbandoned, now)
		out = append(out, t)
	}
	if s.State == enums.CartSessionStateAbandoned && idle >= p.ExpireAfter {
		t, _ := transition(s, enums.CartSessionStateExpired, now)
		out = append(out, t)
	}
	return out
}

// Sweep evaluates the time-based rules over sessions without mutating them.
// Transitions are ordered by session creation, then by step.
func Sweep(sessions []CartSession, now time.Time, p Policy) []Transition {
	_, transitions := sweepCopies(sessions, now, p)
	return transitions
}

func sweepCopies(sessions []CartSession, now time.Time, p Policy) ([]CartSession, []Transition) {
	advanced := make([]CartSession, len(sessions))
	order := make([]int, len(sessions))
	for i := range sessions {
		advanced[i] = sessions[i].Clone()
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return advanced[order[a]].CreatedAt.Before(advanced[order[b]].CreatedAt)
	})

	var transitions []Transition
	for _, idx := range order {
		transitions = append(transitions, advance(&advanced[idx], now, p)...)
	}
	return advanced, transitions
}

// finalSnapshots keeps the last snapshot per session from a transition list.
func finalSnapshots(transitions []Transition) map[uuid.UUID]CartSession {
	out := make(map[uuid.UUID]CartSession, len(transitions))
	for _, t := range transitions {
		out[t.SessionID] = t.Session
	}
	return out
}
