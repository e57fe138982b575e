// Package middleware provides HTTP middleware for the fund layer API.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/internal/httputil"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
)

// RoleAdmin marks tokens allowed to hit the admin and maintenance endpoints.
const RoleAdmin = "admin"

// Claims are the JWT claims carried by API tokens.
type Claims struct {
	UserID  string `json:"user_id"`
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates HS256 bearer tokens and places the caller's identity in the
// request context.
type Auth struct {
	secret    []byte
	skipPaths map[string]bool
	log       *logger.Logger
}

// NewAuth creates the auth middleware. skipPaths bypass authentication
// entirely (health probes, metrics scrapes).
func NewAuth(secret string, log *logger.Logger, skipPaths []string) (*Auth, error) {
	if secret == "" {
		return nil, errors.Validation("jwt secret required")
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Auth{secret: []byte(secret), skipPaths: skip, log: log}, nil
}

// Handler returns the authentication middleware.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.WriteError(w, errors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			httputil.WriteError(w, errors.Unauthorized("malformed Authorization header"))
			return
		}

		claims, err := a.validate(parts[1])
		if err != nil {
			a.log.WithError(err).WithField("path", r.URL.Path).Warn("token rejected")
			httputil.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, roleKey, claims.Role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken signs a token for the given identity. Used by operator tooling
// and tests.
func (a *Auth) IssueToken(userID, role string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.Validation("user id required")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, errors.Unauthorized("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.Unauthorized("invalid token claims")
	}
	return claims, nil
}

// UserID extracts the authenticated user from the context.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// Role extracts the caller's role from the context.
func Role(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey).(string); ok {
		return v
	}
	return ""
}

// RequireAdmin rejects callers whose token lacks the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Role(r.Context()) != RoleAdmin {
			httputil.WriteError(w, errors.Forbidden("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
