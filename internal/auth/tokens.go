package auth

import (
	"encoding/json/v2"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/pairsync/pairsync-server/internal/id"
)

const (
	tokenIssuer   = "pairsync-server"
	tokenAudience = "pairsync-admin"

	// PASETO v4 symmetric key requirements.
	keyBytesSize = 32 // 256 bits
	keyHexSize   = 64 // 32 bytes as hex string
)

// TokenService handles PASETO token generation and verification.
type TokenService struct {
	symmetricKey   paseto.V4SymmetricKey
	accessDuration time.Duration
}

// NewTokenService creates a token service from a raw 32-byte key.
func NewTokenService(key []byte, accessDuration time.Duration) (*TokenService, error) {
	if len(key) != keyBytesSize {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyBytesSize, len(key))
	}
	symmetric, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}
	if accessDuration <= 0 {
		accessDuration = 30 * 24 * time.Hour
	}
	return &TokenService{symmetricKey: symmetric, accessDuration: accessDuration}, nil
}

// GenerateAccessToken creates a v4.local token granting role to subject.
func (s *TokenService) GenerateAccessToken(subject string, role Role) (string, error) {
	if _, ok := ParseRole(string(role)); !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(subject)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.accessDuration))

	tokenID, err := id.Generate("token")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("role", string(role))

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// VerifyAccessToken decrypts a token and checks its issuer, audience, and
// validity window.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(time.Now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if _, ok := ParseRole(string(claims.Role)); !ok {
		return nil, fmt.Errorf("invalid token: unknown role %q", claims.Role)
	}
	return &claims, nil
}

// AccessTokenDuration returns the configured token lifetime.
func (s *TokenService) AccessTokenDuration() time.Duration {
	return s.accessDuration
}
