package utils

import (
	"context"
	"errors"

	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
)

// ContextKey is a type for context keys private to this package
type ContextKey int

var (
	ErrValueNotFound = errors.New("value not found in context")
)

// WithRequestID attaches a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return logger.WithRequestID(ctx, requestID)
}

// RequestIDFromContext extracts the request ID from the context
func RequestIDFromContext(ctx context.Context) (string, error) {
	requestID, ok := logger.RequestIDFromContext(ctx)
	if !ok {
		return "", ErrValueNotFound
	}
	return requestID, nil
}

// GetContextString extracts a string value from the context by its key
func GetContextString(ctx context.Context, key interface{}) (string, error) {
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", ErrValueNotFound
	}
	return value, nil
}

// GetContextStringOrDefault extracts a string value from the context or returns a default
func GetContextStringOrDefault(ctx context.Context, key interface{}, defaultValue string) string {
	value, err := GetContextString(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}
