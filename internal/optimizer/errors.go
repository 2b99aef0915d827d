package optimizer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrInfeasible         = errors.New("infeasible")
	ErrExposureInfeasible = errors.New("exposure infeasible")
	ErrCancelled          = errors.New("cancelled")
	ErrInternal           = errors.New("internal error")
)

// Error is a typed optimizer failure. Kind is one of the sentinel errors above
// so callers can branch with errors.Is.
type Error struct {
	Kind          error
	Message       string
	Entity        string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Entity != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Entity)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func invalidInputf(format string, args ...interface{}) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func infeasiblef(format string, args ...interface{}) error {
	return &Error{Kind: ErrInfeasible, Message: fmt.Sprintf(format, args...)}
}

func exposureInfeasible(entity string, format string, args ...interface{}) error {
	return &Error{Kind: ErrExposureInfeasible, Message: fmt.Sprintf(format, args...), Entity: entity}
}

func cancelled(err error) error {
	return &Error{Kind: ErrCancelled, Message: "generation stopped before a usable batch was ready", Err: err}
}

// NewInputError builds an InvalidInput error for callers validating requests
// outside this package.
func NewInputError(format string, args ...interface{}) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NewUnknownStrategyError reports a strategy name missing from the registry.
func NewUnknownStrategyError(name string) error {
	return &Error{Kind: ErrUnknownStrategy, Message: fmt.Sprintf("%q is not a registered strategy", name)}
}

// NewInternalError tags an unexpected failure with a fresh correlation id.
func NewInternalError(err error) error {
	return &Error{Kind: ErrInternal, CorrelationID: uuid.New().String(), Err: err}
}

// CorrelationID extracts the correlation id of an internal error, if any.
func CorrelationID(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.CorrelationID
	}
	return ""
}

// ErrorEntity returns the entity an error refers to, such as the first unmet
// exposure target.
func ErrorEntity(err error) string {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Entity
	}
	return ""
}

// IsInputError reports whether err is a fail-fast input error, raised before
// any sampling starts.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnknownStrategy) || errors.Is(err, ErrInfeasible)
}

// KindName returns a stable snake_case name for the error's kind, "" for nil
// and "internal" for errors outside this package.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUnknownStrategy):
		return "unknown_strategy"
	case errors.Is(err, ErrInfeasible):
		return "infeasible"
	case errors.Is(err, ErrExposureInfeasible):
		return "exposure_infeasible"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "internal"
	}
}
