package enums

import "fmt"

// CartSessionState tracks where a cart session sits in the recovery lifecycle.
type CartSessionState string

const (
	CartSessionStateActive    CartSessionState = "active"
	CartSessionStateAbandoned CartSessionState = "abandoned"
	CartSessionStateRecovered CartSessionState = "recovered"
	CartSessionStateExpired   CartSessionState = "expired"
)

var validCartSessionStates = []CartSessionState{
	CartSessionStateActive,
	CartSessionStateAbandoned,
	CartSessionStateRecovered,
	CartSessionStateExpired,
}

// CartSessionStates returns every state in lifecycle order.
func CartSessionStates() []CartSessionState {
	out := make([]CartSessionState, len(validCartSessionStates))
	copy(out, validCartSessionStates)
	return out
}

func (s CartSessionState) String() string {
	return string(s)
}

// IsValid reports whether the value matches a known state.
func (s CartSessionState) IsValid() bool {
	for _, candidate := range validCartSessionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state accepts no further mutation.
func (s CartSessionState) IsTerminal() bool {
	return s == CartSessionStateRecovered || s == CartSessionStateExpired
}

// IsLive is the complement of IsTerminal for valid states.
func (s CartSessionState) IsLive() bool {
	return s == CartSessionStateActive || s == CartSessionStateAbandoned
}

// ParseCartSessionState converts raw input into a CartSessionState.
func ParseCartSessionState(value string) (CartSessionState, error) {
	for _, candidate := range validCartSessionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart session state %q", value)
}
