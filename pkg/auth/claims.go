// Package auth verifies caller JWTs for ekaya-datagate. Tokens are issued
// elsewhere; this package only checks them and exposes the caller identity.
package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Roles recognised by the gateway.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Claims is the caller token. Department drives permission resolution.
type Claims struct {
	jwt.RegisteredClaims
	Department string   `json:"dept,omitempty"`
	Email      string   `json:"email,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	ToolID     string   `json:"tool,omitempty"` // set when the token was minted for an automated tool
}

// HasRole reports whether the claims carry any of roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims returns a context carrying claims and the raw token.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}

// Caller is the identity the connector manager needs from a token.
type Caller struct {
	UserID     string
	Department string
	ToolID     string
}

// ExtractCallerFromContext returns the caller identity from JWT claims in ctx.
func ExtractCallerFromContext(ctx context.Context) (Caller, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return Caller{}, errors.New("authentication required: no claims in context")
	}
	if claims.Subject == "" {
		return Caller{}, errors.New("missing user ID in JWT claims")
	}
	if claims.Department == "" {
		return Caller{}, ErrMissingDepartment
	}
	return Caller{
		UserID:     claims.Subject,
		Department: claims.Department,
		ToolID:     claims.ToolID,
	}, nil
}
