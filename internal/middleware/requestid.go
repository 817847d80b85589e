package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey       contextKey = "request_id"
	clientRequestIDKey contextKey = "client_request_id"
)

const maxClientRequestID = 128

// RequestID assigns every request a fresh server-side id. A client supplied
// X-Request-ID is kept separately as the client request id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		if client := strings.TrimSpace(r.Header.Get("X-Request-ID")); client != "" && len(client) <= maxClientRequestID {
			ctx = context.WithValue(ctx, clientRequestIDKey, client)
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ClientRequestIDFromContext returns the caller's X-Request-ID, if it sent one.
func ClientRequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientRequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestID stores id as the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
