package utils

import "strings"

// Error codes carried in the response envelope.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnknownStrategy    = "UNKNOWN_STRATEGY"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInfeasible         = "INFEASIBLE"
	ErrCodeExposureInfeasible = "EXPOSURE_INFEASIBLE"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " (" + e.Details + ")"
	}
	return e.Code + ": " + e.Message
}

// NewAppError builds an AppError. Multiple details are joined with "; ".
func NewAppError(code, message string, details ...string) *AppError {
	return &AppError{Code: code, Message: message, Details: strings.Join(details, "; ")}
}
