package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartrecovery/pkg/redis"
)

// Manager records which events each consumer has delivered. A delivery first
// claims cr:idempotency:delivered:<consumer>:<event_id> with a random token;
// only the holder of that token can release the claim again.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	token func() string
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, token: uuid.NewString}, nil
}

// Claim marks eventID as delivered by consumer. fresh is false when an
// earlier claim still holds, in which case release is nil. Call release when
// delivery fails so a retry can claim the event again.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (release func(context.Context) error, fresh bool, err error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return nil, false, err
	}
	token := m.token()
	ok, err := m.store.SetNX(ctx, key, token, m.ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		_, err := m.store.DeleteIfValue(ctx, key, token)
		return err
	}
	return release, true, nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("delivered:"+consumer, eventID.String()), nil
}
