package middleware

import (
	"context"
	"net/http"
	"strings"
)

const identityKey contextKey = "identity"

const maxIdentityLength = 128

// Identity is the caller as declared by upstream auth. An empty UserID means
// the request is anonymous.
type Identity struct {
	UserID    string
	SessionID string
}

// IdentityHeaders reads X-User-ID and X-Session-ID. Values longer than the
// column width are ignored.
func IdentityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID:    headerValue(r, "X-User-ID"),
			SessionID: headerValue(r, "X-Session-ID"),
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func headerValue(r *http.Request, name string) string {
	v := strings.TrimSpace(r.Header.Get(name))
	if len(v) > maxIdentityLength {
		return ""
	}
	return v
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) Identity {
	if v, ok := ctx.Value(identityKey).(Identity); ok {
		return v
	}
	return Identity{}
}
