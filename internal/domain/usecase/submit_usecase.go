package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/google/uuid"

	"drill-evaluator/internal/domain/entity"
)

type ResultRepo interface {
	Upsert(ctx context.Context, result *entity.EvaluationResult) error
	GetByRequestID(ctx context.Context, requestID string) (*entity.EvaluationResult, error)
	GetByJobID(ctx context.Context, jobID string) (*entity.EvaluationResult, error)
}

type JobRepo interface {
	Create(ctx context.Context, jobID string) (bool, error)
	Get(ctx context.Context, jobID string) (*entity.JobHandle, error)
	MarkActive(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	ResetForRetry(ctx context.Context, jobID string) error
	WaitUntilFinished(ctx context.Context, jobID string, timeout time.Duration) error
}

type Publisher interface {
	Publish(ctx context.Context, body json.RawMessage) error
}

type AudioStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Status is the client-facing state of a submission. The queue's active state
// maps to processing; everything else maps one to one.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Resolved reports whether a client should stop polling.
func (s Status) Resolved() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome is what every submission and status path returns, so a client can
// always resume polling with the same identifiers.
type Outcome struct {
	JobID     string
	RequestID string
	Status    Status
	Result    *entity.EvaluationResult
	PollAfter time.Duration
}

// SubmitUseCase is the hybrid sync/async request orchestrator: it answers
// synchronously when the worker finishes within the wait budget and degrades
// to the polling contract otherwise.
type SubmitUseCase struct {
	Results   ResultRepo
	Jobs      JobRepo
	Publisher Publisher
	Audio     AudioStore

	SyncWaitTimeout time.Duration
	PollAfter       time.Duration
	AudioURLTTL     time.Duration

	PublishMaxAttempts int
	PublishBackoffBase time.Duration
}

func NewSubmitUseCase(results ResultRepo, jobs JobRepo, pub Publisher, audio AudioStore, syncWaitTimeout time.Duration) *SubmitUseCase {
	return &SubmitUseCase{
		Results:         results,
		Jobs:            jobs,
		Publisher:       pub,
		Audio:           audio,
		SyncWaitTimeout: syncWaitTimeout,
		PollAfter:       3 * time.Second,
		AudioURLTTL:     24 * time.Hour,

		PublishMaxAttempts: 5,
		PublishBackoffBase: 500 * time.Millisecond,
	}
}

// SubmitAudio persists the uploaded recording first, then runs the regular
// submission flow with the derived audio URL.
func (u *SubmitUseCase) SubmitAudio(ctx context.Context, req entity.EvaluationRequest, data []byte, filename, contentType string) (*Outcome, error) {
	if err := uuid.Validate(req.RequestID); err != nil {
		return nil, entity.ErrInvalidRequestID
	}
	if len(data) == 0 {
		return nil, entity.ErrEmptySubmission
	}

	ext := path.Ext(filename)
	if ext == "" {
		ext = ".webm"
	}
	key := fmt.Sprintf("audio/%s/%s%s", req.RequestID, uuid.New().String(), ext)

	if err := u.Audio.Upload(ctx, key, data, contentType); err != nil {
		return nil, err
	}

	audioURL, err := u.Audio.GetPresignedURL(ctx, key, u.AudioURLTTL)
	if err != nil {
		return nil, err
	}

	req.Text = ""
	req.AudioURL = audioURL
	return u.Submit(ctx, req)
}

func (u *SubmitUseCase) Submit(ctx context.Context, req entity.EvaluationRequest) (*Outcome, error) {
	req.Canonicalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Idempotency short-circuit: a persisted result is final, so a retried
	// or double-clicked submission never re-bills the model.
	cached, err := u.Results.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return u.completed(cached), nil
	}

	// jobID = requestID collapses the two identifier spaces, so the queue's
	// insert-if-absent doubles as submission de-duplication.
	jobID := req.RequestID

	created, err := u.Jobs.Create(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := u.publishJob(ctx, req); err != nil {
			_ = u.Jobs.MarkFailed(ctx, jobID, "enqueue failed")
			return nil, err
		}
	}

	handle, err := u.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if handle == nil {
		// Entry already consumed or expired before we looked. If the result
		// landed we return it; otherwise the client's next poll resolves it.
		res, err := u.Results.GetByRequestID(ctx, req.RequestID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return u.completed(res), nil
		}
		return u.pending(jobID, req.RequestID, StatusQueued), nil
	}

	if handle.State == entity.StateFailed {
		// Stale failure from an earlier run. Waiting on it would resolve
		// immediately to the dead handle, so clear it and run fresh.
		if err := u.Jobs.ResetForRetry(ctx, jobID); err != nil {
			return nil, err
		}
		if err := u.publishJob(ctx, req); err != nil {
			return nil, err
		}
		return u.pending(jobID, req.RequestID, StatusQueued), nil
	}

	waitErr := u.Jobs.WaitUntilFinished(ctx, jobID, u.SyncWaitTimeout)
	switch {
	case waitErr == nil:
		// Completed within the window. Serve the durable row, never the
		// queue's in-flight view; if the write hasn't landed yet, the
		// client polls rather than getting a fabricated result.
		res, err := u.Results.GetByRequestID(ctx, req.RequestID)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return u.pending(jobID, req.RequestID, StatusProcessing), nil
		}
		return u.completed(res), nil

	case errors.Is(waitErr, entity.ErrWaitTimeout):
		status := StatusQueued
		if h, err := u.Jobs.Get(ctx, jobID); err == nil && h != nil && h.State == entity.StateActive {
			status = StatusProcessing
		}
		return u.pending(jobID, req.RequestID, status), nil

	case errors.Is(waitErr, entity.ErrJobFailed):
		res, err := u.Results.GetByRequestID(ctx, req.RequestID)
		if err == nil && res != nil {
			return u.completed(res), nil
		}
		return &Outcome{
			JobID:     jobID,
			RequestID: req.RequestID,
			Status:    StatusFailed,
		}, nil

	default:
		return nil, waitErr
	}
}

// publishJob pushes the job message with bounded exponential backoff; the
// broker being briefly unreachable must not fail the submission outright.
func (u *SubmitUseCase) publishJob(ctx context.Context, req entity.EvaluationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}

	const maxDelay = 10 * time.Second
	baseDelay := u.PublishBackoffBase
	maxAttempts := u.PublishMaxAttempts

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := u.Publisher.Publish(ctx, body); err == nil {
			return nil
		} else {
			lastErr = err
			log.Printf("publish attempt %d for job %s failed: %v\n", attempt, req.RequestID, err)
		}

		if attempt == maxAttempts {
			break
		}

		backoff := baseDelay << (attempt - 1)
		if backoff > maxDelay {
			backoff = maxDelay
		}

		select {
		case <-time.After(backoff):

		case <-ctx.Done():
			return fmt.Errorf("publish canceled: %w", ctx.Err())
		}
	}

	return lastErr
}

func (u *SubmitUseCase) completed(res *entity.EvaluationResult) *Outcome {
	return &Outcome{
		JobID:     res.JobID,
		RequestID: res.RequestID,
		Status:    StatusCompleted,
		Result:    res,
	}
}

func (u *SubmitUseCase) pending(jobID, requestID string, status Status) *Outcome {
	return &Outcome{
		JobID:     jobID,
		RequestID: requestID,
		Status:    status,
		PollAfter: u.PollAfter,
	}
}
