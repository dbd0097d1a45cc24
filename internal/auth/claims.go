package auth

import (
	"time"
)

// Role grants access to a class of endpoints.
type Role string

// Roles. Admin includes everything edit can do.
const (
	RoleEdit  Role = "edit"
	RoleAdmin Role = "admin"
)

// ParseRole accepts "edit" or "admin".
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleEdit, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Allows reports whether a token carrying r may call an endpoint requiring want.
func (r Role) Allows(want Role) bool {
	switch want {
	case RoleEdit:
		return r == RoleEdit || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	}
	return false
}

// AccessClaims represents the claims stored in a PASETO access token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type AccessClaims struct {
	Role Role `json:"role"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
