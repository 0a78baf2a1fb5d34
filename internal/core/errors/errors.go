package errors

import "errors"

const (
	HttpInternalError      = "internal_error"
	HttpInvalidJsonError   = "invalid_json"
	HttpValidationError    = "validation_failed"
	HttpBatchSizeError     = "invalid_batch"
	HttpPayloadTooLarge    = "payload_too_large"
	HttpMissingCredential  = "missing_api_key"
	HttpInvalidCredential  = "invalid_api_key"
	HttpRateLimited        = "rate_limited"
	HttpPublishFailedError = "publish_failed"
	HttpInvalidQueryError  = "invalid_query"
)

// Pipeline error taxonomy. Components wrap these so callers can branch with errors.Is.
var (
	// ErrValidation marks malformed or oversized input (400).
	ErrValidation = errors.New("validation error")

	// ErrMissingCredential is returned when no credential was presented (401).
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential is returned for unknown or inactive credentials (403).
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrQuotaExceeded marks a request over its rate budget (429).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTransient marks bus or store unavailability. The gateway answers 500,
	// the worker nacks and waits for redelivery.
	ErrTransient = errors.New("transient dependency error")

	// ErrPoisonMessage marks a bus payload that can never become an Event.
	// It is logged and diverted instead of blocking its partition.
	ErrPoisonMessage = errors.New("poison message")
)

// ErrorResponse is the JSON error body for every HTTP error.
type ErrorResponse struct {
	ErrorType string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
