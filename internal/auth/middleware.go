package auth

import (
	"context"
	"net/http"

	"ms-payments/internal/logger"
	"ms-payments/internal/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware admits requests carrying a storefront token signed with secret.
// The token subject is stored in the request context.
func Middleware(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authorization required", err))
				return
			}

			userID, err := ParseUserID(rawToken, secret)
			if err != nil {
				log.LogSecurity("JWT_REJECTED", r.Method+" "+r.URL.Path+": "+err.Error())
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Invalid token", err))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
