/**
 * @description
 * Custom middleware for the HTTP router: optional bearer identity, the
 * internal API key guard and Redis-backed rate limiting.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: bearer token validation.
 */

package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/autolytiq/income-service/internal/app"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const userIDKey UserIDContextKey = "userID"

// OptionalAuthMiddleware reads an HS256 bearer token when one is sent and
// puts its subject on the request context. Requests without a token pass
// through anonymously; a token that fails validation is rejected.
func OptionalAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if secret == "" || authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				respondWithError(w, http.StatusUnauthorized, "User ID not found in token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromContext returns the authenticated user id, or nil for anonymous requests.
func userIDFromContext(ctx context.Context) *string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return nil
	}
	return &userID
}

// InternalAuthMiddleware guards server-to-server routes. Without a configured
// key every request is refused.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-API-Key")
			if requiredKey == "" || provided == "" ||
				subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware allows limit requests per client IP per minute for
// scope. Limiter failures let the request through.
func RateLimitMiddleware(limiter app.RateLimiter, scope string, limit int, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			subject := clientIP(r)
			decision, err := limiter.Allow(r.Context(), scope, subject, limit, time.Minute)
			if err != nil {
				logger.Warn("rate limiter unavailable; allowing request", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
				respondWithError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
