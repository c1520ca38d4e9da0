package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/accountd/server/internal/auth"
	"github.com/accountd/server/internal/model"
	"github.com/accountd/server/internal/repo"
	"github.com/google/uuid"
)

type contextKey string

const (
	userKey   contextKey = "user"
	userIDKey contextKey = "user_id"
)

// AuthMiddleware validates bearer access tokens, loads the credential from
// the store, and attaches it to the request context.
func AuthMiddleware(jwtService *auth.JWTService, userRepo repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString, auth.TokenTypeAccess)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			user, err := userRepo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "user not found")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, &user)
			ctx = context.WithValue(ctx, userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the credential attached by AuthMiddleware.
func GetUser(ctx context.Context) (*model.Credential, bool) {
	u, ok := ctx.Value(userKey).(*model.Credential)
	return u, ok
}

// GetUserID extracts the credential ID from context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
