package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrPolicyRejected    ErrorType = "POLICY_REJECTED"
	ErrExchangeDisabled  ErrorType = "EXCHANGE_DISABLED_FOR_USER"
	ErrTradingDisabled   ErrorType = "TRADING_DISABLED"
	ErrMaxTradesExceeded ErrorType = "MAX_TRADES_EXCEEDED"
	ErrDailyStopHit      ErrorType = "DAILY_STOP_HIT"
	ErrDecryptionFailed  ErrorType = "DECRYPTION_FAILED"
	ErrTransient         ErrorType = "TRANSIENT_ERROR"
	ErrValidationFailed  ErrorType = "VALIDATION_FAILED"
	ErrNotFound          ErrorType = "NOT_FOUND"
	ErrAuthFailed        ErrorType = "AUTH_FAILED"
	ErrConflict          ErrorType = "CONFLICT"
	ErrInternal          ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the engine. Policy and limit
// rejections travel through it as structured decisions, never as faults.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewPolicyRejected(msg string) *AppError {
	return New(ErrPolicyRejected, msg, nil)
}

func NewValidationFailed(msg string) *AppError {
	return New(ErrValidationFailed, msg, nil)
}

func NewTransient(msg string, cause error) *AppError {
	return New(ErrTransient, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err is an AppError of the given type.
func Is(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

// Retryable reports whether the caller may retry the request unchanged.
// Only infrastructure failures qualify; policy rejections are terminal.
func Retryable(err error) bool {
	return Is(err, ErrTransient)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrPolicyRejected, ErrValidationFailed:
		return http.StatusBadRequest
	case ErrExchangeDisabled:
		return http.StatusForbidden
	case ErrTradingDisabled, ErrMaxTradesExceeded, ErrDailyStopHit, ErrConflict:
		return http.StatusConflict
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrDecryptionFailed:
		return http.StatusUnprocessableEntity
	case ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrPolicyRejected:
		return "Check order parameters against strategy policy."
	case ErrExchangeDisabled:
		return "Ask an administrator to enable this exchange for the user."
	case ErrTradingDisabled:
		return "Trading is globally disabled by the admin kill-switch."
	case ErrMaxTradesExceeded, ErrDailyStopHit:
		return "Daily risk limits reached; no further trades today."
	case ErrDecryptionFailed:
		return "Credential record needs remediation; do not retry with a stale key."
	case ErrTransient:
		return "Retry the request."
	case ErrAuthFailed:
		return "Check API keys."
	default:
		return ""
	}
}
