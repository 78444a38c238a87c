package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for batch lifecycle classification.
var (
	// ErrBatchNotFound means the vendor reports the batch as not found or
	// inaccessible. Terminal: the driver stops polling and reports the
	// chunk as lost rather than retrying indefinitely.
	ErrBatchNotFound = errors.New("BatchNotFoundError")

	// ErrBatchAlreadyFinished is returned when a caller attempts to
	// resubmit a batch that already reached its terminal state.
	ErrBatchAlreadyFinished = errors.New("BatchAlreadyFinishedError")

	// ErrBatchNotFinished is returned when download is attempted before
	// the batch reached its terminal state.
	ErrBatchNotFinished = errors.New("BatchNotFinishedError")
)

// SubmissionError means upload or job creation failed. Partial vendor-side
// state (an uploaded file without a job) is possible and is not remediated
// by this layer.
type SubmissionError struct {
	Backend string
	Stage   string // "serialize", "upload" or "create"
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("[%s] batch submission failed at %s: %v", e.Backend, e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// UnknownStatusError means the vendor returned a status outside the
// adapter's enumerated vocabulary. Fatal: adapters must classify every
// vendor status explicitly, never silently default.
type UnknownStatusError struct {
	Backend string
	Status  string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("[%s] unknown batch status %q", e.Backend, e.Status)
}

// RetrievalError is a transient network or auth failure while polling.
// Logged and retried on the next poll tick until the retry budget is spent.
type RetrievalError struct {
	Backend string
	BatchID string
	Err     error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("[%s] retrieve batch %s: %v", e.Backend, e.BatchID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// MissingResultError marks a submitted request with no corresponding result
// after download. Surfaced as a per-request failure; it does not fail the
// whole batch.
type MissingResultError struct {
	OriginalRowIdx int
	BatchID        string
}

func (e *MissingResultError) Error() string {
	return fmt.Sprintf("no result for request %d in batch %s", e.OriginalRowIdx, e.BatchID)
}
