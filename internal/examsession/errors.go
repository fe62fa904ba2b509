package examsession

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInProgress is returned by operations outside IN_PROGRESS.
	ErrNotInProgress = errors.New("exam session is not in progress")
	// ErrTimeExpired is returned when answering after the clock reached zero.
	ErrTimeExpired = errors.New("exam time has expired")
	// ErrInvalidAnswer flags an out-of-range question or option index.
	// The UI only emits valid indices, so this is a programming error.
	ErrInvalidAnswer = errors.New("answer index out of range")
	// ErrInvalidTransition is returned when a phase change is not allowed.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("exam session closed")
)

// LoadError wraps a failed exam fetch. It is terminal for the session.
type LoadError struct {
	ExamID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load exam %s: %v", e.ExamID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SubmitError wraps a failed submission. The attempt stays in progress.
type SubmitError struct {
	ExamID string
	// Forced is true when the submission was triggered by the clock.
	Forced bool
	Err    error
}

func (e *SubmitError) Error() string {
	kind := "submit"
	if e.Forced {
		kind = "timed-out submit"
	}
	return fmt.Sprintf("%s exam %s: %v", kind, e.ExamID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
