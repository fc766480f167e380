package analysis

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned by Runner.Submit when no queue slot is free.
var ErrQueueFull = errors.New("analysis queue is full")

// ErrRunnerClosed is returned by Runner.Submit after Close.
var ErrRunnerClosed = errors.New("analysis runner is closed")

// BadRequestError means the record cannot be analyzed as submitted, e.g. its root
// feature has no registered source location. Retrying will not help.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

// Analysis stages reported by AnalysisError.
const (
	StageFetch   = "fetch"
	StageQuery   = "query"
	StagePersist = "persist"
)

// AnalysisError is a failure in one stage of an analysis run.
type AnalysisError struct {
	RecordID string
	Stage    string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of %s failed at %s: %v", e.RecordID, e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
