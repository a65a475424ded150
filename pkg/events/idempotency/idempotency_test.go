package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeStore mimics SETNX and compare-and-delete over a map.
type fakeStore struct {
	values   map[string]string
	ttls     map[string]time.Duration
	setNXErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "cr:idempotency:" + scope + ":" + id
}

func TestClaimFirstDeliveryThenDuplicate(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	eventID := uuid.New()
	ctx := context.Background()

	release, fresh, err := manager.Claim(ctx, "cart-email", eventID)
	if err != nil || !fresh || release == nil {
		t.Fatalf("first Claim = (%v, %v, %v), want fresh claim", release != nil, fresh, err)
	}
	key := "cr:idempotency:delivered:cart-email:" + eventID.String()
	if store.ttls[key] != 24*time.Hour {
		t.Fatalf("unexpected ttl %v for %s", store.ttls[key], key)
	}

	again, fresh, err := manager.Claim(ctx, "cart-email", eventID)
	if err != nil || fresh || again != nil {
		t.Fatalf("second Claim = (%v, %v, %v), want duplicate", again != nil, fresh, err)
	}

	if _, fresh, _ := manager.Claim(ctx, "cart-audit", eventID); !fresh {
		t.Fatal("expected claims scoped per consumer")
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	store := newFakeStore()
	manager, _ := NewManager(store, time.Hour)
	eventID := uuid.New()
	ctx := context.Background()

	release, _, err := manager.Claim(ctx, "cart-email", eventID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, fresh, _ := manager.Claim(ctx, "cart-email", eventID); !fresh {
		t.Fatal("expected event claimable after release")
	}
}

func TestStaleReleaseKeepsNewerClaim(t *testing.T) {
	store := newFakeStore()
	manager, _ := NewManager(store, time.Hour)
	eventID := uuid.New()
	ctx := context.Background()
	key := "cr:idempotency:delivered:cart-email:" + eventID.String()

	stale, _, _ := manager.Claim(ctx, "cart-email", eventID)
	delete(store.values, key)
	if _, fresh, _ := manager.Claim(ctx, "cart-email", eventID); !fresh {
		t.Fatal("expected reclaim after expiry")
	}
	if err := stale(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, ok := store.values[key]; !ok {
		t.Fatal("stale release removed the newer claim")
	}
}

func TestClaimErrors(t *testing.T) {
	store := newFakeStore()
	store.setNXErr = errors.New("redis down")
	manager, _ := NewManager(store, time.Hour)
	ctx := context.Background()

	if _, _, err := manager.Claim(ctx, "cart-email", uuid.New()); err == nil {
		t.Fatal("expected store error to propagate")
	}
	if _, _, err := manager.Claim(ctx, " ", uuid.New()); err == nil {
		t.Fatal("expected consumer name to be required")
	}
	if _, _, err := manager.Claim(ctx, "cart-email", uuid.Nil); err == nil {
		t.Fatal("expected event id to be required")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
	if _, err := NewManager(newFakeStore(), -time.Second); err == nil {
		t.Fatal("expected negative ttl to be rejected")
	}
}
