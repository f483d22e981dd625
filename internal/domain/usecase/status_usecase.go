package usecase

import (
	"context"
	"time"

	"drill-evaluator/internal/domain/entity"
)

// StatusUseCase serves the polling contract. The result store is authoritative:
// a hit there is completed regardless of what the queue still shows, since a
// persisted result is final and retries cannot change it.
type StatusUseCase struct {
	Results   ResultRepo
	Jobs      JobRepo
	PollAfter time.Duration
}

func NewStatusUseCase(results ResultRepo, jobs JobRepo) *StatusUseCase {
	return &StatusUseCase{
		Results:   results,
		Jobs:      jobs,
		PollAfter: 3 * time.Second,
	}
}

func (u *StatusUseCase) Status(ctx context.Context, jobID string) (*Outcome, error) {
	res, storeErr := u.Results.GetByJobID(ctx, jobID)
	if storeErr == nil && res != nil {
		return &Outcome{
			JobID:     jobID,
			RequestID: res.RequestID,
			Status:    StatusCompleted,
			Result:    res,
		}, nil
	}

	handle, err := u.Jobs.Get(ctx, jobID)
	if err != nil {
		if storeErr != nil {
			return nil, storeErr
		}
		// Queue unreachable and no durable result: report not found rather
		// than guessing at a state the job may never have had.
		return nil, entity.ErrJobNotFound
	}
	if handle == nil {
		return nil, entity.ErrJobNotFound
	}

	switch handle.State {
	case entity.StateFailed:
		return &Outcome{
			JobID:     jobID,
			RequestID: jobID,
			Status:    StatusFailed,
		}, nil
	case entity.StateQueued:
		return &Outcome{
			JobID:     jobID,
			RequestID: jobID,
			Status:    StatusQueued,
			PollAfter: u.PollAfter,
		}, nil
	default:
		// Active, or completed with the durable write not yet visible.
		// Either way the client should keep polling, never get a result
		// synthesized from queue state.
		return &Outcome{
			JobID:     jobID,
			RequestID: jobID,
			Status:    StatusProcessing,
			PollAfter: u.PollAfter,
		}, nil
	}
}
