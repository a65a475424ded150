package carts

import (
	"testing"
	"time"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, baseTime, testPolicy())
	if stats.TotalTracked != 0 || stats.RecoveryRate != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AverageTimeToRecovery != nil {
		t.Fatal("expected nil average time to recovery")
	}
	for _, state := range enums.CartSessionStates() {
		if _, ok := stats.CountByState[state]; !ok {
			t.Fatalf("expected state %s present in counts", state)
		}
	}
}

func TestComputeStatsAggregates(t *testing.T) {
	p := testPolicy()

	active := activeSession("active@example.com", baseTime.Add(-10*time.Minute))

	abandoned := activeSession("abandoned@example.com", baseTime.Add(-3*time.Hour))

	direct := activeSession("direct@example.com", baseTime.Add(-5*time.Hour))
	direct.State = enums.CartSessionStateRecovered
	direct.RecoveredAt = timePtr(direct.CreatedAt.Add(30 * time.Minute))

	reclaimed := activeSession("reclaimed@example.com", baseTime.Add(-6*time.Hour))
	reclaimed.State = enums.CartSessionStateRecovered
	reclaimed.AbandonedAt = timePtr(reclaimed.CreatedAt.Add(time.Hour))
	reclaimed.RecoveredAt = timePtr(reclaimed.CreatedAt.Add(90 * time.Minute))

	expired := activeSession("expired@example.com", baseTime.Add(-100*time.Hour))
	expired.State = enums.CartSessionStateExpired

	sessions := []CartSession{active, abandoned, direct, reclaimed, expired}
	stats := ComputeStats(sessions, baseTime, p)

	if stats.TotalTracked != 5 {
		t.Fatalf("expected 5 tracked, got %d", stats.TotalTracked)
	}
	if stats.CountByState[enums.CartSessionStateAbandoned] != 1 {
		t.Fatalf("expected sweep to abandon one session, got %+v", stats.CountByState)
	}
	if stats.RecoveredDirect != 1 || stats.RecoveredAfterAbandonment != 1 {
		t.Fatalf("unexpected recovery split direct=%d after=%d", stats.RecoveredDirect, stats.RecoveredAfterAbandonment)
	}
	if want := 2.0 / 3.0; stats.RecoveryRate != want {
		t.Fatalf("expected recovery rate %v, got %v", want, stats.RecoveryRate)
	}
	if stats.AverageTimeToRecovery == nil || *stats.AverageTimeToRecovery != time.Hour {
		t.Fatalf("expected average time to recovery 1h, got %v", stats.AverageTimeToRecovery)
	}
	if stats.TotalAbandonedValue != 2000 || stats.TotalActiveValue != 2000 {
		t.Fatalf("unexpected values abandoned=%d active=%d", stats.TotalAbandonedValue, stats.TotalActiveValue)
	}
	if abandoned.State != enums.CartSessionStateActive {
		t.Fatal("ComputeStats must not mutate its input")
	}
	if !stats.ComputedAt.Equal(baseTime) {
		t.Fatalf("unexpected ComputedAt %v", stats.ComputedAt)
	}
}
