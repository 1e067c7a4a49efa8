package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned by IssueAccess on a verify-only provider.
	ErrNoSigningKey = errors.New("token provider has no signing key")
)

// AccessClaims holds JWT claims for the access token. Roles are never carried in the token;
// they are read from the membership and grant tables on every check.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// TokenProvider issues and validates bearer access tokens signed with RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for a verify-only provider (the API server).
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	if publicKey == nil && privateKey != nil {
		publicKey = privateKey.Public()
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        time.Now,
	}
}

// IssueAccess issues an access JWT for userID. Returns the token and its expiration time.
func (p *TokenProvider) IssueAccess(userID, email string) (string, time.Time, error) {
	if p.privateKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	var method jwt.SigningMethod
	switch KeyAlg(p.privateKey.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud) and returns its claims.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	alg := KeyAlg(p.publicKey)
	if alg == "" {
		return nil, ErrInvalidKey
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return p.publicKey, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
