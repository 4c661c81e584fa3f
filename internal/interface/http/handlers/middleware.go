package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// ErrEmptySecret is returned when the API secret is not configured.
var ErrEmptySecret = errors.New("api secret is empty")

// BearerAuth checks "Authorization: Bearer <secret>" against a keyed
// BLAKE2b-256 digest of the configured secret. The key is random per process
// and the plaintext secret is not retained.
type BearerAuth struct {
	key []byte
	sum []byte
}

// NewBearerAuth digests secret under a fresh random key.
func NewBearerAuth(secret string) (*BearerAuth, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate auth key: %w", err)
	}
	a := &BearerAuth{key: key}
	sum, err := a.digest(secret)
	if err != nil {
		return nil, err
	}
	a.sum = sum
	return a, nil
}

func (a *BearerAuth) digest(s string) ([]byte, error) {
	h, err := blake2b.New256(a.key)
	if err != nil {
		return nil, err
	}
	h.Write([]byte(s))
	return h.Sum(nil), nil
}

// BearerToken extracts the token of a Bearer Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	return token, token != ""
}

// Authorized reports whether r carries the secret.
func (a *BearerAuth) Authorized(r *http.Request) bool {
	token, ok := BearerToken(r)
	if !ok {
		return false
	}
	sum, err := a.digest(token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(a.sum, sum) == 1
}

// Middleware rejects unauthorized requests with deny.
func (a *BearerAuth) Middleware(deny http.HandlerFunc) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Authorized(r) {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADER MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// NoCacheMiddleware prevents caching of API responses.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains middleware so the first one listed runs first.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
