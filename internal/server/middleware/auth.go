// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const uidKey ContextKey = "uid"

// TokenValidator validates bearer tokens. It lets the middleware work with any JWT service.
type TokenValidator interface {
	ValidateToken(tokenString string) (UIDGetter, error)
}

// UIDGetter extracts the identity provider uid from token claims.
type UIDGetter interface {
	GetUID() string
}

// AuthMiddleware rejects requests without a valid bearer token and puts the uid in the context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Scheme is case-insensitive
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				unauthorized(w)
				return
			}
			uid := claims.GetUID()
			if uid == "" {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUID(r.Context(), uid)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "authentication required",
		"code":  "unauthenticated",
	})
}

// WithUID returns a context carrying uid.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

// GetUID extracts the authenticated uid from the request context.
func GetUID(r *http.Request) (string, error) {
	uid, ok := r.Context().Value(uidKey).(string)
	if !ok || uid == "" {
		return "", fmt.Errorf("uid not found in request context")
	}
	return uid, nil
}
