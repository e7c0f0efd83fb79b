package states

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Configuration errors
	ErrInvalidOwnerType     = errors.New("states: invalid owner type")
	ErrInvalidConfiguration = errors.New("states: invalid configuration")
	ErrInvalidCallback      = errors.New("states: invalid callback")

	// Validation errors, surfaced through ValidationErrors
	ErrInvalidStatus    = errors.New("states: status is not configured")
	ErrUnknownStateType = errors.New("states: state type is not configured")
	ErrLimitExceeded    = errors.New("states: state limit exceeded")
	ErrSchemaViolation  = errors.New("states: metadata does not conform to schema")
	ErrOwnerNotFound    = errors.New("states: owner not found")

	// Dispatch and storage errors
	ErrCallbackAction = errors.New("states: callback action failed")
	ErrRecordNotFound = errors.New("states: record not found")
	ErrNilStore       = errors.New("states: store cannot be nil")
	ErrNilRegistry    = errors.New("states: registry cannot be nil")
)

// ValidationError is a single failed validation rule.
type ValidationError struct {
	Rule    string // rule name, e.g. "status_is_configured"
	Field   string // record attribute the failure is attached to
	Message string
	Err     error // one of the validation sentinels
}

func (e *ValidationError) Error() string {
	if e.Field == "" || e.Field == "base" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors collects every rule that failed for a single write.
type ValidationErrors []*ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(ve))
	for _, err := range ve {
		parts = append(parts, err.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes every failure so errors.Is matches any of the sentinels.
func (ve ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(ve))
	for _, err := range ve {
		errs = append(errs, err)
	}
	return errs
}

// Has reports whether any failure is attached to field.
func (ve ValidationErrors) Has(field string) bool {
	for _, err := range ve {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Rules returns the names of the failed rules in evaluation order.
func (ve ValidationErrors) Rules() []string {
	rules := make([]string, 0, len(ve))
	for _, err := range ve {
		rules = append(rules, err.Rule)
	}
	return rules
}

// ExtractValidationErrors returns the ValidationErrors wrapped in err, or nil.
func ExtractValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// IsValidationError reports whether err carries ValidationErrors.
func IsValidationError(err error) bool {
	return ExtractValidationErrors(err) != nil
}

// CallbackError reports a failed callback action. The state write it was
// dispatched for is already committed.
type CallbackError struct {
	CallbackID string
	StateType  string
	Err        error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %q on %q failed: %v", e.CallbackID, e.StateType, e.Err)
}

func (e *CallbackError) Unwrap() []error {
	return []error{ErrCallbackAction, e.Err}
}

// DispatchError aggregates the callback failures of one dispatch.
type DispatchError struct {
	RecordID string
	Errors   []*CallbackError
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%d callback(s) failed for state %s: %s", len(e.Errors), e.RecordID, strings.Join(parts, "; "))
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}

// IsDispatchError reports whether err carries a *DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
