package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"
)

type contextKey string

const UserKey contextKey = "user"

// UserHeader carries the id of the caller, set by the gateway in front of
// this service after it authenticated the request.
const UserHeader = "X-User-ID"

// User is the authenticated caller.
type User struct {
	ID uint
}

func GetUserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(UserKey).(*User)
	return user, ok
}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// RequireUser rejects requests without a valid caller id.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserHeader))
		id, err := strconv.ParseUint(raw, 10, 64)
		if raw == "" || err != nil || id == 0 {
			logger.WithField("path", r.URL.Path).Warn("request without valid user id")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &User{ID: uint(id)})))
	})
}
