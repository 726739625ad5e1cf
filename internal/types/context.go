package types

import "context"

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxUserID    ContextKey = "ctx_user_id"
)

// GetUserID returns the acting user id from the context, if any
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxUserID).(string); ok {
		return id
	}
	return ""
}

// GetRequestID returns the request id from the context, if any
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxRequestID).(string); ok {
		return id
	}
	return ""
}
