package security

import "time"

// NewTestTokenProvider returns a TokenProvider over a freshly generated ES256 key.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, nil, "test-issuer", "test-audience", 15*time.Minute), nil
}
