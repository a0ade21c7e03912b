package credentials

// Credentials is the content of .folio/credentials.toml, written by
// "folio auth" and read when model callers and embedders resolve keys.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential is one [providers.<name>] table.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}

// Key returns the stored key for provider, or "" when there is none.
func (c *Credentials) Key(provider string) string {
	if c == nil {
		return ""
	}
	return c.Providers[provider].APIKey
}
