package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"

	"Gamarr/models"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserLookup confirms that a session's user still exists.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// RequireUser resolves the user id stored in the session cookie and rejects
// the request with 401 when it is missing or no longer valid.
func RequireUser(store sessions.Store, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, SessionName)
			if err != nil {
				unauthorized(w)
				return
			}

			userID, ok := sessionUserID(session.Values["user_id"])
			if !ok {
				unauthorized(w)
				return
			}

			// Verify user still exists
			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				slog.Error("failed to look up session user", "user_id", userID, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if user == nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func sessionUserID(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case int:
		return int64(id), true
	case string:
		parsed, err := strconv.ParseInt(id, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the authenticated user id set by RequireUser.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
