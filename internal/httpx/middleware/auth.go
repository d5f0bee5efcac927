package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
	"github.com/vadim/tutor-support/internal/httpx/response"
)

// Identity is the authenticated user extracted from a bearer token
type Identity struct {
	UserID string
	Role   entity.Role
	Name   string
}

// Claims carried by marketplace access tokens
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type identityKey struct{}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by Auth
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

var errMissingToken = errors.New("missing bearer token")

// Auth verifies HS256 bearer tokens and rejects requests without a valid one
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := ParseToken(r.Header.Get("Authorization"), secret)
			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// ParseToken validates an Authorization header value and returns its identity
func ParseToken(header string, secret []byte) (Identity, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Identity{}, errMissingToken
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Identity{}, errors.New("invalid token")
	}

	role := entity.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return Identity{}, errors.New("bad claims")
	}

	return Identity{UserID: claims.Subject, Role: role, Name: claims.Name}, nil
}

// TokenIdentity reads the identity claims of a token without verifying its signature.
// Clients holding a token issued elsewhere use it to learn who they are.
func TokenIdentity(raw string) (Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), &claims); err != nil {
		return Identity{}, errors.New("malformed token")
	}

	role := entity.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return Identity{}, errors.New("bad claims")
	}

	return Identity{UserID: claims.Subject, Role: role, Name: claims.Name}, nil
}

// IssueToken signs an access token. Used by tooling and tests.
func IssueToken(secret []byte, userID string, role entity.Role, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
