package utils

import (
	"context"
	"errors"

	"github.com/uc-cdis/metadata-service-sub001/internal/shared/contextkeys"
)

// Common context errors
var (
	ErrRequestIDNotFound  = errors.New("requestID not found in context")
	ErrRequestIDNotString = errors.New("requestID in context is not a string")
	ErrAdminUserNotFound  = errors.New("admin user not found in context")
)

// GetRequestIDFromContext retrieves the request ID from the context.
func GetRequestIDFromContext(ctx context.Context) (string, error) {
	val := ctx.Value(contextkeys.RequestIDKey)
	if val == nil {
		return "", ErrRequestIDNotFound
	}
	requestID, ok := val.(string)
	if !ok {
		return "", ErrRequestIDNotString
	}
	return requestID, nil
}

// GetAdminUserFromContext retrieves the admin login that passed the admin gate.
func GetAdminUserFromContext(ctx context.Context) (string, error) {
	user, ok := ctx.Value(contextkeys.AdminUserKey).(string)
	if !ok || user == "" {
		return "", ErrAdminUserNotFound
	}
	return user, nil
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
}

// WithAdminUser adds the authenticated admin login to context
func WithAdminUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, contextkeys.AdminUserKey, user)
}

// WithComponent adds component name to context
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, contextkeys.ComponentKey, component)
}

// WithOperation adds operation name to context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextkeys.OperationKey, operation)
}

// WithCommons adds the commons name to context
func WithCommons(ctx context.Context, commons string) context.Context {
	return context.WithValue(ctx, contextkeys.CommonsKey, commons)
}

// GetRequestIDOrDefault retrieves the request ID from context or returns a default value
func GetRequestIDOrDefault(ctx context.Context, def string) string {
	if v, err := GetRequestIDFromContext(ctx); err == nil {
		return v
	}
	return def
}
