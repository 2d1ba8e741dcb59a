package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Validation Errors (Request input validation)
const (
	ErrCodeMissingField    ErrorCode = "missing_field"
	ErrCodeInvalidField    ErrorCode = "invalid_field"
	ErrCodeMissingTenant   ErrorCode = "missing_tenant"
	ErrCodeInvalidTenant   ErrorCode = "invalid_tenant"
	ErrCodeInvalidDuration ErrorCode = "invalid_duration"
)

// Subscription State Errors
const (
	ErrCodeSubscriptionNotFound  ErrorCode = "subscription_not_found"
	ErrCodeNotLinked             ErrorCode = "not_linked"
	ErrCodeAlreadySubscribed     ErrorCode = "already_subscribed"
	ErrCodeTrialAlreadyUsed      ErrorCode = "trial_already_used"
	ErrCodeAlreadyCancelled      ErrorCode = "already_cancelled"
	ErrCodeSyncAlreadyInProgress ErrorCode = "sync_already_in_progress"
)

// Webhook Errors
const (
	ErrCodeInvalidSignature ErrorCode = "invalid_signature"
	ErrCodeInvalidPayload   ErrorCode = "invalid_payload"
	ErrCodeUnknownEvent     ErrorCode = "unknown_event"
)

// Authorization Errors
const (
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeRateLimited  ErrorCode = "rate_limited"
)

// External Service Errors (billing provider, etc.)
const (
	ErrCodeProviderError       ErrorCode = "provider_error"
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrCodeNetworkError        ErrorCode = "network_error"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeCacheError    ErrorCode = "cache_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient network/service issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	// Network and service errors are retryable
	case ErrCodeProviderError,
		ErrCodeProviderUnavailable,
		ErrCodeNetworkError,
		ErrCodeSyncAlreadyInProgress:
		return true

	// Validation, authorization, and permanent failures are NOT retryable
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - Client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeMissingTenant,
		ErrCodeInvalidTenant,
		ErrCodeInvalidDuration,
		ErrCodeInvalidSignature,
		ErrCodeInvalidPayload,
		ErrCodeUnknownEvent:
		return 400

	// 401 Unauthorized
	case ErrCodeUnauthorized:
		return 401

	// 404 Not Found - Resource not found
	case ErrCodeSubscriptionNotFound,
		ErrCodeNotLinked:
		return 404

	// 409 Conflict - Business rule conflicts
	case ErrCodeAlreadySubscribed,
		ErrCodeTrialAlreadyUsed,
		ErrCodeAlreadyCancelled,
		ErrCodeSyncAlreadyInProgress:
		return 409

	// 429 Too Many Requests
	case ErrCodeRateLimited:
		return 429

	// 502 Bad Gateway - External service errors
	case ErrCodeProviderError,
		ErrCodeNetworkError:
		return 502

	// 503 Service Unavailable - Circuit open or provider down
	case ErrCodeProviderUnavailable:
		return 503

	// 500 Internal Server Error - System/internal errors
	default:
		return 500
	}
}
