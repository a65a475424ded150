package enums

import (
	"fmt"
	"strings"
)

// CartAction is the action tag carried by inbound cart tracking requests.
type CartAction string

const (
	CartActionTrack     CartAction = "track"
	CartActionUpdate    CartAction = "update"
	CartActionRecovered CartAction = "recovered"
)

var validCartActions = []CartAction{
	CartActionTrack,
	CartActionUpdate,
	CartActionRecovered,
}

func (a CartAction) IsValid() bool {
	for _, candidate := range validCartActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseCartAction converts raw input into a CartAction; matching is case-insensitive.
func ParseCartAction(value string) (CartAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validCartActions {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart action %q", value)
}
