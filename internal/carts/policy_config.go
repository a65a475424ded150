package carts

import (
	"github.com/angelmondragon/cartrecovery/pkg/config"
	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

// PolicyFromConfig builds the sweep policy from the cart configuration section.
func PolicyFromConfig(cfg config.CartConfig) (Policy, error) {
	retention, err := enums.ParseRetentionPolicy(cfg.Retention)
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		AbandonAfter: cfg.AbandonThreshold,
		ExpireAfter:  cfg.ExpireThreshold,
		Retention:    retention,
	}
	return p, p.Validate()
}
