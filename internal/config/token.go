package config

import (
	"fmt"

	"github.com/inercia/mcproxy/internal/secrets"
)

// ResolveToken returns the bearer token to enforce for this child, resolving
// TokenRef via the OS keychain (internal/secrets) when set. Returns "" if
// the child requires no bearer token.
func ResolveToken(cfg ChildConfig) (string, error) {
	if cfg.TokenRef != "" {
		token, err := secrets.GetChildToken(cfg.TokenRef)
		if err != nil && err != secrets.ErrNotFound && err != secrets.ErrNotSupported {
			return "", fmt.Errorf("failed to resolve token for child %s: %w", cfg.ID, err)
		}
		return token, nil
	}
	return cfg.Token, nil
}
