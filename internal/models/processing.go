package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOutOfOrder       = errors.New("merge applied out of submission order")
	ErrMaskSize         = errors.New("mask size does not match frame size")
	ErrFrameSize        = errors.New("frame size does not match configured size")
	ErrWorkerInit       = errors.New("classification worker failed to start")
	ErrSlotNotReserved  = errors.New("worker slot was not reserved")
	ErrPoolStopped      = errors.New("worker pool is not running")
	ErrSourceExhausted  = errors.New("frame source exhausted")
	ErrFrameNotReady    = errors.New("frame not ready")
	ErrPipelineClosed   = errors.New("merge pipeline closed")
	ErrClassifierClosed = errors.New("classifier closed")
)

// FrameTask is the unit of work handed to a classification worker.
// Seq orders every task of a run, independent of pass or threshold.
type FrameTask struct {
	Seq       uint64
	Pass      int
	Threshold float64
	Frame     Frame
}

// Result is the resolved value of a submitted task
type Result struct {
	Worker   int
	Task     FrameTask
	Mask     PixelMask
	Err      error
	Duration time.Duration
}

// Failed reports whether the classifier failed on this task
func (r Result) Failed() bool {
	return r.Err != nil
}

// SignalKind classifies the outcome of a merge
type SignalKind int

const (
	SignalProgress SignalKind = iota
	SignalNoChange
	SignalDone
)

func (k SignalKind) String() string {
	switch k {
	case SignalProgress:
		return "progress"
	case SignalNoChange:
		return "no_change"
	case SignalDone:
		return "done"
	default:
		return "unknown"
	}
}

// Signal is returned by every merge
type Signal struct {
	Kind      SignalKind
	Completed int
}

func Progress(completed int) Signal { return Signal{Kind: SignalProgress, Completed: completed} }
func NoChange(completed int) Signal { return Signal{Kind: SignalNoChange, Completed: completed} }
func Done(completed int) Signal     { return Signal{Kind: SignalDone, Completed: completed} }

// IsDone reports whether the signal is terminal
func (s Signal) IsDone() bool {
	return s.Kind == SignalDone
}

// TerminalStatus is the outcome of a whole run
type TerminalStatus int

const (
	// StatusExhausted means every threshold and frame was processed without full convergence
	StatusExhausted TerminalStatus = iota
	// StatusCompleted means every pixel was settled
	StatusCompleted
)

func (s TerminalStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// RunStats summarizes a finished run
type RunStats struct {
	RunID           string
	Status          TerminalStatus
	PassesStarted   int
	Dispatched      uint64
	Merged          uint64
	Failed          uint64
	Completed       int
	Total           int
	AverageClassify time.Duration
	Elapsed         time.Duration
}

// Percent returns the settled share of pixels in the range 0..100
func (s RunStats) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// ValidationError represents a configuration validation failure
type ValidationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

// NewValidationError creates a new validation error
func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Value:     value,
		Message:   message,
	}
}

// Error returns the error message
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for parameter '%s' with value '%v': %s",
		ve.Parameter, ve.Value, ve.Message)
}
