package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeTransport    = "TRANSPORT_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Content classification of a fetched room page.
	ErrCodeNeedsLogin       = "BLOCKED_NEEDS_LOGIN"
	ErrCodeNeedsCaptcha     = "BLOCKED_NEEDS_CAPTCHA"
	ErrCodeExtractionFailed = "EXTRACTION_FAILED"

	// Interactive credential recovery.
	ErrCodeInteractiveTimeout   = "INTERACTIVE_TIMEOUT"
	ErrCodeInteractiveCancelled = "INTERACTIVE_CANCELLED"
	ErrCodeInteractiveFailed    = "INTERACTIVE_FAILED"

	// Persisted credentials.
	ErrCodeCredentialsNotFound = "CREDENTIALS_NOT_FOUND"
	ErrCodeCredentialsCorrupt  = "CREDENTIALS_CORRUPT"
	ErrCodeCredentialsIO       = "CREDENTIALS_IO"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first ScrapeError in err's chain,
// or "" when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsBlocked reports whether err is a content-classified access wall
// (login, captcha or an unmatched page structure).
func IsBlocked(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNeedsLogin, ErrCodeNeedsCaptcha, ErrCodeExtractionFailed:
		return true
	}
	return false
}
