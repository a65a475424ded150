package carts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store guarded by a single mutex.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]CartSession
	order    []uuid.UUID
	live     map[string]uuid.UUID
	newID    func() uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[uuid.UUID]CartSession{},
		live:     map[string]uuid.UUID{},
		newID:    uuid.New,
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := applyUpsert(m.liveLocked(in.Identity), in, m.newID)
	if err != nil {
		return UpsertResult{}, err
	}
	if result.Dropped {
		m.deleteLocked(result.Session.ID)
	} else {
		m.putLocked(result.Session)
	}
	result.Session = result.Session.Clone()
	return result, nil
}

func (m *MemoryStore) Get(ctx context.Context, identity string) (*CartSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if live := m.liveLocked(identity); live != nil {
		out := live.Clone()
		return &out, nil
	}
	if latest := m.latestTerminalLocked(identity); latest != nil {
		out := latest.Clone()
		return &out, nil
	}
	return nil, nil
}

func (m *MemoryStore) Remove(ctx context.Context, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	for _, id := range append([]uuid.UUID(nil), m.order...) {
		if m.sessions[id].Identity == identity {
			m.deleteLocked(id)
			removed = true
		}
	}
	return removed, nil
}

func (m *MemoryStore) All(ctx context.Context) ([]CartSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CartSession, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) MarkRecovered(ctx context.Context, identity string, now time.Time) (RecoveryResult, error) {
	if err := ctx.Err(); err != nil {
		return RecoveryResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.liveLocked(identity)
	if live == nil {
		if latest := m.latestTerminalLocked(identity); latest != nil {
			out := latest.Clone()
			return RecoveryResult{Outcome: RecoveryOutcomeAlreadyTerminal, Session: &out}, nil
		}
		return RecoveryResult{Outcome: RecoveryOutcomeNotFound}, nil
	}

	next, t, err := applyRecovery(live, now)
	if err != nil {
		return RecoveryResult{}, err
	}
	m.putLocked(next)
	out := next.Clone()
	return RecoveryResult{Outcome: RecoveryOutcomeRecovered, Session: &out, Transition: &t}, nil
}

func (m *MemoryStore) ApplySweep(ctx context.Context, now time.Time, p Policy) ([]Transition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make([]CartSession, 0, len(m.live))
	for _, id := range m.order {
		if s := m.sessions[id]; s.IsLive() {
			live = append(live, s)
		}
	}
	transitions := Sweep(live, now, p)
	for _, s := range finalSnapshots(transitions) {
		if !s.IsLive() && p.DropsExpired() {
			m.deleteLocked(s.ID)
			continue
		}
		m.putLocked(s)
	}
	return transitions, nil
}

func (m *MemoryStore) liveLocked(identity string) *CartSession {
	id, ok := m.live[identity]
	if !ok {
		return nil
	}
	s := m.sessions[id]
	return &s
}

func (m *MemoryStore) latestTerminalLocked(identity string) *CartSession {
	var latest *CartSession
	for _, id := range m.order {
		s := m.sessions[id]
		if s.Identity != identity || s.IsLive() {
			continue
		}
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = &s
		}
	}
	return latest
}

func (m *MemoryStore) putLocked(s CartSession) {
	if _, exists := m.sessions[s.ID]; !exists {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	if s.IsLive() {
		m.live[s.Identity] = s.ID
	} else if m.live[s.Identity] == s.ID {
		delete(m.live, s.Identity)
	}
}

func (m *MemoryStore) deleteLocked(id uuid.UUID) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if m.live[s.Identity] == id {
		delete(m.live, s.Identity)
	}
	for i, candidate := range m.order {
		if candidate == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
