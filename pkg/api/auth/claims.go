// Package auth issues and validates the bearer tokens that guard the
// mutating control API routes.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role names understood by the control API.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// TokenType distinguishes access tokens from anything else signed with the
// same secret.
type TokenType string

const (
	// TokenTypeAccess authorizes control API calls.
	TokenTypeAccess TokenType = "access"
)

// Claims are the JWT claims of a control API token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is RoleAdmin or RoleViewer.
	Role string `json:"role"`

	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsAdmin returns true if the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
