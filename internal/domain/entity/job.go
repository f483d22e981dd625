package entity

import (
	"errors"
	"time"
)

var (
	// ErrWaitTimeout means a bounded wait elapsed before the job reached a
	// terminal state. Callers fall back to the polling contract.
	ErrWaitTimeout = errors.New("timed out waiting for job")
	// ErrJobFailed means the job reached the failed terminal state.
	ErrJobFailed = errors.New("job failed")
	// ErrJobNotFound means neither the result store nor the queue knows the job.
	ErrJobNotFound = errors.New("job not found")
)

type JobState string

const (
	StateQueued    JobState = "queued"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// JobHandle is a point-in-time view of a job's bookkeeping entry.
// The worker owns the transitions; everyone else only reads.
type JobHandle struct {
	JobID        string
	State        JobState
	Attempts     int
	FailedReason string
	UpdatedAt    time.Time
}
