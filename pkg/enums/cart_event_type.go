package enums

import "fmt"

// CartEventType names the outbound notifications emitted on session transitions.
type CartEventType string

const (
	CartEventTracked     CartEventType = "cart_tracked"
	CartEventAbandoned   CartEventType = "cart_abandoned"
	CartEventRecovered   CartEventType = "cart_recovered"
	CartEventExpired     CartEventType = "cart_expired"
	CartEventReactivated CartEventType = "cart_reactivated"
)

var validCartEventTypes = []CartEventType{
	CartEventTracked,
	CartEventAbandoned,
	CartEventRecovered,
	CartEventExpired,
	CartEventReactivated,
}

func (e CartEventType) String() string {
	return string(e)
}

func (e CartEventType) IsValid() bool {
	for _, candidate := range validCartEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseCartEventType converts raw input into a CartEventType.
func ParseCartEventType(value string) (CartEventType, error) {
	for _, candidate := range validCartEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart event type %q", value)
}
