// Package auth provides bearer-token authentication and the platform's
// permission levels.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Permission levels, ordered from least to most privileged.
const (
	RoleStudent   = "st"
	RoleAssistant = "ta"
	RoleProfessor = "pf"
	RoleSuperuser = "su"
)

// ErrInvalidToken indicates a missing, malformed, expired or mis-signed
// bearer token.
var ErrInvalidToken = errors.New("invalid token")

// User is the authenticated caller extracted from a verified token.
type User struct {
	ID         int64
	Permission string
}

// Elevated reports whether the user may read other users' session data.
func (u User) Elevated() bool {
	return u.Permission == RoleProfessor || u.Permission == RoleSuperuser
}

// Superuser reports whether the user may access cross-user aggregates
// such as the session export.
func (u User) Superuser() bool {
	return u.Permission == RoleSuperuser
}

// contextKey is a private type for context keys.
type contextKey int

const userContextKey contextKey = iota

// WithUser adds the authenticated user to the context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFrom retrieves the authenticated user from the context.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey).(User)
	return u, ok
}

// Verifier parses and verifies HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// tokenClaims are the registered claims plus the platform's user claims.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
}

// Parse verifies the token signature and extracts the caller. Tokens with
// an unexpected signing method, a missing user ID or an unknown permission
// level are rejected.
func (v *Verifier) Parse(token string) (User, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.UserID == 0 {
		return User{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	switch claims.Permission {
	case RoleStudent, RoleAssistant, RoleProfessor, RoleSuperuser:
	default:
		return User{}, fmt.Errorf("%w: unknown permission %q", ErrInvalidToken, claims.Permission)
	}

	return User{ID: claims.UserID, Permission: claims.Permission}, nil
}

// Sign issues a token for the user. Used by tests and provisioning tools;
// the service itself only verifies.
func (v *Verifier) Sign(u User) (string, error) {
	claims := tokenClaims{UserID: u.ID, Permission: u.Permission}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}
