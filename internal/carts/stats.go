package carts

import (
	"time"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

// Stats summarises every tracked session at a point in time.
type Stats struct {
	TotalTracked              int                            `json:"totalTracked"`
	CountByState              map[enums.CartSessionState]int `json:"countByState"`
	RecoveredAfterAbandonment int                            `json:"recoveredAfterAbandonment"`
	RecoveredDirect           int                            `json:"recoveredDirect"`
	RecoveryRate              float64                        `json:"recoveryRate"`
	AverageTimeToRecovery     *time.Duration                 `json:"averageTimeToRecovery,omitempty"`
	TotalAbandonedValue       int64                          `json:"totalAbandonedValue"`
	TotalActiveValue          int64                          `json:"totalActiveValue"`
	ComputedAt                time.Time                      `json:"computedAt"`
}

// ComputeStats sweeps a copy of sessions at now and aggregates the result.
// The recovery rate only counts sessions whose outcome is decided.
func ComputeStats(sessions []CartSession, now time.Time, p Policy) Stats {
	advanced, _ := sweepCopies(sessions, now, p)

	stats := Stats{
		TotalTracked: len(advanced),
		CountByState: make(map[enums.CartSessionState]int, 4),
		ComputedAt:   now,
	}
	for _, state := range enums.CartSessionStates() {
		stats.CountByState[state] = 0
	}

	var recoveryTotal time.Duration
	for _, s := range advanced {
		stats.CountByState[s.State]++
		switch s.State {
		case enums.CartSessionStateActive:
			stats.TotalActiveValue += s.TotalValue()
		case enums.CartSessionStateAbandoned:
			stats.TotalAbandonedValue += s.TotalValue()
		case enums.CartSessionStateRecovered:
			if s.RecoveredAfterAbandonment() {
				stats.RecoveredAfterAbandonment++
			} else {
				stats.RecoveredDirect++
			}
			if d, ok := s.TimeToRecovery(); ok {
				recoveryTotal += d
			}
		}
	}

	recovered := stats.CountByState[enums.CartSessionStateRecovered]
	decided := recovered + stats.CountByState[enums.CartSessionStateExpired]
	if decided > 0 {
		stats.RecoveryRate = float64(recovered) / float64(decided)
	}
	if recovered > 0 {
		avg := recoveryTotal / time.Duration(recovered)
		stats.AverageTimeToRecovery = &avg
	}
	return stats
}
