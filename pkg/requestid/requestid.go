// Package requestid carries a per-request correlation id through context so
// every log line of one ingestion request can be tied together.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// Generate mints a fresh request id.
func Generate() string {
	return uuid.New().String()
}

// ToContext stores the request id on the context.
func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// FromContext returns the request id, or "" when the context carries none.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromRequest returns the request id bound to the request's context.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
