package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/openworm/wormgraph/pkg/utils"
)

// ErrorResponse represents the standard error response format
// @Description Standard error response format for all API errors
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information
// @Description Detailed error information including code, message, and optional details
type ErrorDetail struct {
	Code      string         `json:"code" example:"NOT_FOUND"`
	Message   string         `json:"message" example:"Document not found"`
	Details   map[string]any `json:"details,omitempty" swaggertype:"object"`
	Timestamp time.Time      `json:"timestamp" example:"2023-01-01T00:00:00Z"`
	RequestID string         `json:"request_id,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
}

// ErrorHandler turns panics into INTERNAL_ERROR responses.
func ErrorHandler(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error().
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("request_id", getRequestID(r)).
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Msg("panic while serving request")
					SendInternalError(w, r, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteError sends err with the status its code maps to.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	SendError(w, r, err, HTTPErrorFromAppError(err))
}

func SendError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	detail := ErrorDetail{
		Code:      utils.CodeInternal,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: getRequestID(r),
	}

	var appErr *utils.AppError
	switch {
	case errors.As(err, &appErr):
		detail.Code = appErr.Code
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	case utils.IsNotFound(err):
		detail.Code = utils.CodeNotFound
	case utils.IsValidation(err):
		detail.Code = utils.CodeValidation
	case errors.Is(err, utils.ErrInvalidInput):
		detail.Code = utils.CodeInvalidInput
	case utils.IsIdentifierMissing(err):
		detail.Code = utils.CodeIdentifierMissing
	case errors.Is(err, utils.ErrTimeout):
		detail.Code = utils.CodeTimeout
	}

	writeJSON(w, statusCode, ErrorResponse{Error: detail})
}

func SendValidationError(w http.ResponseWriter, r *http.Request, message string, details map[string]any) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:      utils.CodeValidation,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(r),
		},
	})
}

func SendInternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      utils.CodeInternal,
			Message:   message,
			Timestamp: time.Now().UTC(),
			RequestID: getRequestID(r),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func getRequestID(r *http.Request) string {
	if requestID := chiMiddleware.GetReqID(r.Context()); requestID != "" {
		return requestID
	}
	return r.Header.Get(chiMiddleware.RequestIDHeader)
}

func HTTPErrorFromAppError(err error) int {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case utils.CodeNotFound:
			return http.StatusNotFound
		case utils.CodeAlreadyExists, utils.CodeConcurrentModification:
			return http.StatusConflict
		case utils.CodeInvalidInput, utils.CodeValidation:
			return http.StatusBadRequest
		case utils.CodeIdentifierMissing, utils.CodeMultiplicity:
			return http.StatusUnprocessableEntity
		case utils.CodeTimeout:
			return http.StatusGatewayTimeout
		case utils.CodeExternalRetrieval:
			return http.StatusBadGateway
		case utils.CodeConfiguration:
			return http.StatusServiceUnavailable
		case utils.CodeRateLimited:
			return http.StatusTooManyRequests
		default:
			return http.StatusInternalServerError
		}
	}

	switch {
	case utils.IsNotFound(err):
		return http.StatusNotFound
	case utils.IsAlreadyExists(err):
		return http.StatusConflict
	case utils.IsValidation(err), errors.Is(err, utils.ErrInvalidInput):
		return http.StatusBadRequest
	case utils.IsIdentifierMissing(err), utils.IsMultiplicity(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
