//go:build !darwin

package secrets

func init() {
	// No OS keychain on this platform: child bearer tokens configured via
	// TokenRef fall back to plaintext ChildConfig.Token (see config.ResolveToken).
	store = &NoopStore{}
}
