package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment errors
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// Gateway errors. Callers only ever see these kinds; provider bodies stay in the logs.
	ErrMissingConfiguration   = errors.New("payment gateway is not configured")
	ErrGatewayAuthFailure     = errors.New("payment gateway rejected merchant credentials")
	ErrGatewayNetworkFailure  = errors.New("payment gateway unreachable")
	ErrGatewayProtocolFailure = errors.New("payment gateway returned an unexpected response")
	ErrProviderNotFound       = errors.New("payment provider not found")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsGatewayFailure reports whether err is one of the kinds a gateway call can fail with
// after the request chain was started.
func IsGatewayFailure(err error) bool {
	return errors.Is(err, ErrGatewayAuthFailure) ||
		errors.Is(err, ErrGatewayNetworkFailure) ||
		errors.Is(err, ErrGatewayProtocolFailure)
}

// Code returns the stable machine-readable code for the kind wrapped by err.
func Code(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation_error"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrMissingConfiguration):
		return "gateway_not_configured"
	case errors.Is(err, ErrGatewayAuthFailure):
		return "gateway_auth_failure"
	case errors.Is(err, ErrGatewayNetworkFailure):
		return "gateway_unavailable"
	case errors.Is(err, ErrGatewayProtocolFailure):
		return "gateway_protocol_error"
	case errors.Is(err, ErrProviderNotFound):
		return "provider_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal_error"
	}
}
