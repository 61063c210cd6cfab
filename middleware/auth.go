package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"linkboard/auth"

	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	userIDKey    contextKey = "userID"
	userEmailKey contextKey = "userEmail"
)

// UserAuth is a middleware that validates user JWT tokens
type UserAuth struct {
	jwtManager *auth.JWTManager
}

// NewUserAuth creates a new user authentication middleware
func NewUserAuth(jwtManager *auth.JWTManager) *UserAuth {
	return &UserAuth{
		jwtManager: jwtManager,
	}
}

// Protect returns a middleware function that requires authentication
func (ua *UserAuth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Missing authorization token")
			return
		}

		// Check Bearer prefix
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "Invalid authorization header format. Use: Bearer <token>")
			return
		}

		// Validate token
		claims, err := ua.jwtManager.ValidateToken(parts[1])
		if err != nil {
			log.Warn().Err(err).Msg("Invalid token")
			unauthorized(w, "Invalid or expired token")
			return
		}

		// Add user info to context
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, userEmailKey, claims.Email)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// GetUserID extracts the authenticated user ID from request context
func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetUserEmail extracts the authenticated user email from request context
func GetUserEmail(r *http.Request) string {
	email, ok := r.Context().Value(userEmailKey).(string)
	if !ok {
		return ""
	}
	return email
}

// WithUser injects user identity into a request context; used by tests.
func WithUser(r *http.Request, userID, email string) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	ctx = context.WithValue(ctx, userEmailKey, email)
	return r.WithContext(ctx)
}
