package util

// gin context keys
const (
	UserContextKey  = "user"
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)
