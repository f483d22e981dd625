package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"drill-evaluator/internal/domain/entity"
	"drill-evaluator/pkg/analytics"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*entity.Transcript, error)
}

type Scorer interface {
	Score(ctx context.Context, answer string, metadata json.RawMessage) (*entity.ScoreCard, error)
}

// permanentError marks a failure that retrying cannot fix, such as the scoring
// model returning an out-of-schema result. It must not be coerced or retried.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// WorkerUseCase runs one evaluation job to a terminal state: idempotency
// check, transcribe if needed, score, validate, persist, report.
type WorkerUseCase struct {
	Results     ResultRepo
	Jobs        JobRepo
	Transcriber Transcriber
	Scorer      Scorer
	Analytics   analytics.Emitter

	MaxAttempts int
	BackoffBase time.Duration
}

func NewWorkerUseCase(results ResultRepo, jobs JobRepo, tr Transcriber, sc Scorer, em analytics.Emitter) *WorkerUseCase {
	return &WorkerUseCase{
		Results:     results,
		Jobs:        jobs,
		Transcriber: tr,
		Scorer:      sc,
		Analytics:   em,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	}
}

func (u *WorkerUseCase) Handle(ctx context.Context, job entity.EvaluationRequest) error {
	log.Printf("worker received job %s\n", job.RequestID)

	// At-least-once delivery: re-check the store before any paid work. A
	// redelivered job with a persisted result just reports that outcome.
	cached, err := u.Results.GetByRequestID(ctx, job.RequestID)
	if err == nil && cached != nil {
		log.Printf("job %s already has a persisted result, skipping\n", job.RequestID)
		_ = u.Jobs.MarkCompleted(ctx, job.RequestID)
		return nil
	}

	maxAttempts := u.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := u.Jobs.MarkActive(ctx, job.RequestID); err != nil {
			log.Printf("job %s: mark active failed: %v\n", job.RequestID, err)
		}

		lastErr = u.processOnce(ctx, job)
		if lastErr == nil {
			if err := u.Jobs.MarkCompleted(ctx, job.RequestID); err != nil {
				log.Printf("job %s: mark completed failed: %v\n", job.RequestID, err)
			}
			u.emit(ctx, "evaluation_completed", job, map[string]interface{}{
				"attempt": attempt,
			})
			log.Printf("worker finished job %s\n", job.RequestID)
			return nil
		}

		log.Printf("job %s attempt %d failed: %v\n", job.RequestID, attempt, lastErr)

		var perm permanentError
		if errors.As(lastErr, &perm) {
			break
		}
		if attempt == maxAttempts {
			break
		}

		backoff := u.BackoffBase << (attempt - 1)
		select {
		case <-time.After(backoff):

		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		}
	}

	if err := u.Jobs.MarkFailed(ctx, job.RequestID, lastErr.Error()); err != nil {
		log.Printf("job %s: mark failed failed: %v\n", job.RequestID, err)
	}
	u.emit(ctx, "evaluation_failed", job, map[string]interface{}{
		"reason": lastErr.Error(),
	})
	return lastErr
}

// processOnce runs a single attempt. Either the full result is persisted or
// nothing is; there is no partial write to clean up on failure.
func (u *WorkerUseCase) processOnce(ctx context.Context, job entity.EvaluationRequest) error {
	start := time.Now()

	answer := job.Text
	var transcription string

	if job.AudioURL != "" {
		t, err := u.Transcriber.Transcribe(ctx, job.AudioURL)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		answer = t.Text
		transcription = t.Text
	}

	card, err := u.Scorer.Score(ctx, answer, job.Metadata)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	if err := card.Validate(); err != nil {
		return permanentError{fmt.Errorf("scoring output rejected: %w", err)}
	}

	var meta *string
	if len(job.Metadata) > 0 {
		s := string(job.Metadata)
		meta = &s
	}

	result := &entity.EvaluationResult{
		RequestID:     job.RequestID,
		JobID:         job.RequestID,
		Score:         card.Score,
		Feedback:      card.Feedback,
		WhatChanged:   card.WhatChanged,
		PracticeRule:  card.PracticeRule,
		Transcription: transcription,
		DurationMs:    int(time.Since(start).Milliseconds()),
		TokensUsed:    card.TokensUsed,
		UserID:        job.UserID,
		Metadata:      meta,
		CreatedAt:     time.Now().UTC(),
	}

	if err := u.Results.Upsert(ctx, result); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

func (u *WorkerUseCase) emit(ctx context.Context, name string, job entity.EvaluationRequest, props map[string]interface{}) {
	if u.Analytics == nil {
		return
	}
	u.Analytics.Emit(ctx, analytics.Event{
		Name:      name,
		JobID:     job.RequestID,
		UserID:    job.UserID,
		Props:     props,
		Timestamp: time.Now().UTC(),
	})
}
