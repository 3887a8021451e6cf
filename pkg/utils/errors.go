package utils

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("resource not found")
	ErrAlreadyExists          = errors.New("resource already exists")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInternal               = errors.New("internal error")
	ErrTimeout                = errors.New("operation timeout")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrValidation             = errors.New("validation failed")
	ErrIdentifierMissing      = errors.New("identifier missing")
	ErrConfiguration          = errors.New("configuration error")
	ErrMultiplicity           = errors.New("multiplicity error")
	ErrExternalRetrieval      = errors.New("external retrieval failed")
)

const (
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInternal               = "INTERNAL_ERROR"
	CodeTimeout                = "TIMEOUT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeValidation             = "VALIDATION_ERROR"
	CodeIdentifierMissing      = "IDENTIFIER_MISSING"
	CodeConfiguration          = "CONFIGURATION_ERROR"
	CodeMultiplicity           = "MULTIPLICITY_ERROR"
	CodeExternalRetrieval      = "EXTERNAL_RETRIEVAL_ERROR"
	CodeRateLimited            = "RATE_LIMITED"
)

type AppError struct {
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	return err != nil && errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || hasCode(err, CodeNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || hasCode(err, CodeAlreadyExists)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || hasCode(err, CodeValidation)
}

func IsIdentifierMissing(err error) bool {
	return errors.Is(err, ErrIdentifierMissing) || hasCode(err, CodeIdentifierMissing)
}

func IsMultiplicity(err error) bool {
	return errors.Is(err, ErrMultiplicity) || hasCode(err, CodeMultiplicity)
}

