package metrics

import "time"

// Outcome labels the result of a callback execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Recorder receives state engine events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncStateCreated(ownerKind, stateType, status string)
	IncTransition(stateType, from, to string)
	IncValidationFailure(stateType, rule string)
	IncCallbackResult(stateType string, outcome Outcome)
	ObserveDispatchDuration(stateType string, d time.Duration)
	IncCallbackEvicted(stateType string)
}

// NoopRecorder discards everything. It is the default recorder.
type NoopRecorder struct{}

func (NoopRecorder) IncStateCreated(string, string, string)        {}
func (NoopRecorder) IncTransition(string, string, string)          {}
func (NoopRecorder) IncValidationFailure(string, string)           {}
func (NoopRecorder) IncCallbackResult(string, Outcome)             {}
func (NoopRecorder) ObserveDispatchDuration(string, time.Duration) {}
func (NoopRecorder) IncCallbackEvicted(string)                     {}
