package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrGenerationUnavailable = errors.New("comment generation is temporarily unavailable")
	ErrUnauthorized          = errors.New("authentication required or invalid session")
	ErrPaymentProvider       = errors.New("payment provider error")
	ErrPersistence           = errors.New("storage error")
	ErrSignatureInvalid      = errors.New("invalid webhook signature")
	ErrNotFound              = errors.New("requested item not found")
	ErrConflict              = errors.New("item already exists or conflict")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ProviderError carries an already sanitized reason from the payment processor.
type ProviderError struct {
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	return "payment provider: " + e.Reason
}

func (e *ProviderError) Unwrap() []error { return []error{ErrPaymentProvider, e.Err} }

func NewProviderError(reason string, err error) *ProviderError {
	reason = SanitizeErrorMessage(reason)
	if reason == "" {
		reason = "the payment provider rejected the request"
	}
	return &ProviderError{Reason: reason, Err: err}
}

// RateLimitError tells the caller why they were throttled.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return e.Message }

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// StatusFromError maps the error taxonomy onto HTTP status codes.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSignatureInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrPaymentProvider):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the client-facing text for err. Only errors whose message
// was built for users pass through; everything else gets a generic line.
func PublicMessage(err error) string {
	var ve *ValidationError
	var pe *ProviderError
	var re *RateLimitError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &re):
		return re.Message
	case errors.As(err, &pe):
		return pe.Reason
	case errors.Is(err, ErrRateLimitExceeded):
		return "Daily generation limit reached. Try again after your quota resets."
	case errors.Is(err, ErrGenerationUnavailable):
		return "Comment generation is temporarily unavailable. Please try again later."
	case errors.Is(err, ErrUnauthorized):
		return "Authentication required"
	case errors.Is(err, ErrSignatureInvalid):
		return "Invalid signature"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrConflict):
		return "Conflict with the current state"
	default:
		return "Something went wrong. Please try again."
	}
}

var (
	urlPattern      = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://\S+`)
	ipv4Pattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b`)
	ipv6Pattern     = regexp.MustCompile(`(?i)\b(?:[0-9a-f]{1,4}:){3,7}[0-9a-f]{0,4}\b`)
	emailPattern    = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	hostnamePattern = regexp.MustCompile(`(?i)\b[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:internal|local|lan|svc|cluster\.local|corp)\b`)
	secretPattern   = regexp.MustCompile(`\b(?:sk|rk|pk|whsec)_[A-Za-z0-9_]{6,}\b`)
)

// SanitizeErrorMessage removes addresses, hostnames and secrets from upstream
// error text before it is shown to an end user.
func SanitizeErrorMessage(msg string) string {
	msg = urlPattern.ReplaceAllString(msg, "[redacted]")
	msg = emailPattern.ReplaceAllString(msg, "[redacted]")
	msg = secretPattern.ReplaceAllString(msg, "[redacted]")
	msg = ipv4Pattern.ReplaceAllString(msg, "[redacted]")
	msg = ipv6Pattern.ReplaceAllString(msg, "[redacted]")
	msg = hostnamePattern.ReplaceAllString(msg, "[redacted]")
	return strings.TrimSpace(msg)
}
