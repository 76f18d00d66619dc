package cqrs

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrInput   = errors.New("input error")
	ErrStore   = errors.New("store error")
	ErrHandler = errors.New("handler error")
	ErrSink    = errors.New("sink error")
)

// Input error reasons.
var (
	ErrAggregateTypeNotFound = errors.New("aggregate type not found")
	ErrMissingAggregateID    = errors.New("missing aggregate id")
	ErrHandlerNotFound       = errors.New("handler not found")
	ErrInvalidHandler        = errors.New("invalid handler")
)

// InputError reports a command that cannot be dispatched. It is never
// retried.
type InputError struct {
	CommandType string
	Reason      error
	Err         error
}

func (e *InputError) Error() string {
	msg := fmt.Sprintf("command %s: %v", e.CommandType, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() []error {
	errs := []error{ErrInput, e.Reason}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *InputError) FailedStage() Stage { return StageReceived }

// StoreError wraps a failed state or event store operation.
type StoreError struct {
	Stage         Stage
	Op            string
	AggregateType string
	AggregateID   string
	// Conditional is set when the failed operation was a conditional append
	// that writes nothing when it fails.
	Conditional bool
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.AggregateType, e.AggregateID, e.Err)
}

func (e *StoreError) Unwrap() []error    { return []error{ErrStore, e.Err} }
func (e *StoreError) FailedStage() Stage { return e.Stage }

// HandlerError wraps a failure raised by a command handler, aggregate method
// or reducer.
type HandlerError struct {
	Stage       Stage
	CommandType string
	Handler     string
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("command %s: handler %s: %v", e.CommandType, e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() []error    { return []error{ErrHandler, e.Err} }
func (e *HandlerError) FailedStage() Stage { return e.Stage }

// SinkError wraps a failed event sink. The command that produced the event
// is already committed.
type SinkError struct {
	EventType string
	EventID   string
	Sink      string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s for %s (%s): %v", e.Sink, e.EventType, e.EventID, e.Err)
}

func (e *SinkError) Unwrap() []error    { return []error{ErrSink, e.Err} }
func (e *SinkError) FailedStage() Stage { return StageSinksRunning }

// StageOf returns the stage carried by a classified error.
func StageOf(err error) (Stage, bool) {
	var se interface{ FailedStage() Stage }
	if errors.As(err, &se) {
		return se.FailedStage(), true
	}
	return 0, false
}
