package utils

// ContextKey is the type used for request-scoped context values
type ContextKey string

// Context keys populated by handlers when building request contexts
const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Cache key suffixes, combined with the configured redis prefix
const (
	// BreakdownCacheKey prefixes cached cost-breakdown responses, keyed by article ID
	BreakdownCacheKey = "cost_breakdown:"
)
