package utils

// ContextKey is the type for context keys used across handler boundaries
type ContextKey string

const (
	// RequestIDKey carries the inbound request ID for audit correlation
	RequestIDKey ContextKey = "request_id"

	// EndpointKey carries the logical endpoint name for audit correlation
	EndpointKey ContextKey = "endpoint"
)
