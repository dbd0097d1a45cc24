package api

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pairsync/pairsync-server/internal/auth"
	domainerrors "github.com/pairsync/pairsync-server/internal/errors"
)

// authorize validates the Authorization header and requires a token whose
// role covers want.
func (s *Server) authorize(authHeader string, want auth.Role) (*auth.AccessClaims, error) {
	if authHeader == "" {
		return nil, huma.Error401Unauthorized("Missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return nil, huma.Error401Unauthorized("Invalid authorization header format")
	}

	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, huma.Error401Unauthorized("Invalid or expired token")
	}
	if !claims.Role.Allows(want) {
		return nil, domainerrors.Forbidden(string(want) + " access required")
	}
	return claims, nil
}
