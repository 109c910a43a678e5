package config

import "strings"

// Credentials resolves provider API keys from the configuration.
// A key set to the empty string counts as absent.
type Credentials struct {
	cfg *Config
}

// NewCredentials creates a credential provider backed by cfg
func NewCredentials(cfg *Config) *Credentials {
	return &Credentials{cfg: cfg}
}

// GetKey returns the api_key of the named provider section
func (c *Credentials) GetKey(provider string) (string, bool) {
	key := strings.TrimSpace(c.cfg.GetString(strings.ToLower(provider) + ".api_key"))
	return key, key != ""
}
