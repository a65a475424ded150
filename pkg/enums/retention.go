package enums

import (
	"fmt"
	"strings"
)

// RetentionPolicy decides what happens to sessions once they expire.
type RetentionPolicy string

const (
	// RetentionKeep retains expired sessions read-only for historical stats.
	RetentionKeep RetentionPolicy = "keep"
	// RetentionDrop deletes sessions as soon as they expire.
	RetentionDrop RetentionPolicy = "drop"
)

func (r RetentionPolicy) IsValid() bool {
	return r == RetentionKeep || r == RetentionDrop
}

func ParseRetentionPolicy(value string) (RetentionPolicy, error) {
	switch RetentionPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case RetentionKeep:
		return RetentionKeep, nil
	case RetentionDrop:
		return RetentionDrop, nil
	}
	return "", fmt.Errorf("invalid retention policy %q", value)
}
