package sdk

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the error envelope of the API.
const (
	ErrorCodeNotFound          = "NOT_FOUND"
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeInvalidInput      = "INVALID_INPUT"
	ErrorCodeIdentifierMissing = "IDENTIFIER_MISSING"
	ErrorCodeMultiplicity      = "MULTIPLICITY_ERROR"
	ErrorCodeExternalRetrieval = "EXTERNAL_RETRIEVAL_ERROR"
	ErrorCodeRateLimited       = "RATE_LIMITED"
	ErrorCodeInternal          = "INTERNAL_ERROR"
	ErrorCodeUnknown           = "UNKNOWN"
)

// APIError represents an error response from the wormgraph API
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	StatusCode int            `json:"-"`
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidation returns true if the request was rejected as malformed
func (e *APIError) IsValidation() bool {
	return e.StatusCode == http.StatusBadRequest
}

// IsNotFound returns true if the error is a not found error
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsIdentifierMissing reports that the entity had no field to derive an
// identifier from.
func (e *APIError) IsIdentifierMissing() bool {
	return e.Code == ErrorCodeIdentifierMissing
}

// IsRateLimited returns true if the client exceeded its request budget
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsInternal returns true if the error is an internal server error
func (e *APIError) IsInternal() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsAPIError checks if an error is an APIError
func IsAPIError(err error) bool {
	_, ok := AsAPIError(err)
	return ok
}

// AsAPIError finds the APIError in err's chain
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
