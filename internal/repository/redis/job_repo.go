package redis

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"drill-evaluator/internal/domain/entity"
)

const (
	jobKeyPrefix = "eval:job:"
	doneChPrefix = "eval:job:done:"
)

// JobRepo keeps per-job bookkeeping in a Redis hash and signals terminal
// transitions over pub/sub. Job keys expire; durable results live in Postgres.
type JobRepo struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewJobRepo(client *redis.Client) *JobRepo {
	return &JobRepo{Client: client, TTL: 24 * time.Hour}
}

// Create registers a job entry if none exists yet. The HSetNX on the state
// field is what makes enqueueing idempotent: only the caller that actually
// created the entry should publish the queue message.
func (r *JobRepo) Create(ctx context.Context, jobID string) (bool, error) {
	key := jobKeyPrefix + jobID
	created, err := r.Client.HSetNX(ctx, key, "state", string(entity.StateQueued)).Result()
	if err != nil {
		return false, err
	}
	if created {
		if err := r.Client.HSet(ctx, key, "attempts", 0, "updated_at", time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
			log.Printf("job %s: init fields failed: %v\n", jobID, err)
		}
		if err := r.Client.Expire(ctx, key, r.TTL).Err(); err != nil {
			log.Printf("job %s: set ttl failed: %v\n", jobID, err)
		}
	}
	return created, nil
}

// Get returns the job's handle, or nil if the entry is missing or expired.
func (r *JobRepo) Get(ctx context.Context, jobID string) (*entity.JobHandle, error) {
	vals, err := r.Client.HGetAll(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	attempts, _ := strconv.Atoi(vals["attempts"])
	updatedAt, _ := time.Parse(time.RFC3339, vals["updated_at"])
	return &entity.JobHandle{
		JobID:        jobID,
		State:        entity.JobState(vals["state"]),
		Attempts:     attempts,
		FailedReason: vals["failed_reason"],
		UpdatedAt:    updatedAt,
	}, nil
}

func (r *JobRepo) MarkActive(ctx context.Context, jobID string) error {
	key := jobKeyPrefix + jobID
	if err := r.Client.HIncrBy(ctx, key, "attempts", 1).Err(); err != nil {
		return err
	}
	return r.setState(ctx, jobID, entity.StateActive)
}

func (r *JobRepo) MarkCompleted(ctx context.Context, jobID string) error {
	if err := r.setState(ctx, jobID, entity.StateCompleted); err != nil {
		return err
	}
	return r.Client.Publish(ctx, doneChPrefix+jobID, string(entity.StateCompleted)).Err()
}

func (r *JobRepo) MarkFailed(ctx context.Context, jobID, reason string) error {
	key := jobKeyPrefix + jobID
	if err := r.Client.HSet(ctx, key,
		"state", string(entity.StateFailed),
		"failed_reason", reason,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return err
	}
	return r.Client.Publish(ctx, doneChPrefix+jobID, string(entity.StateFailed)).Err()
}

// ResetForRetry clears a recorded failure so the same job ID can run again.
func (r *JobRepo) ResetForRetry(ctx context.Context, jobID string) error {
	key := jobKeyPrefix + jobID
	if err := r.Client.HSet(ctx, key,
		"state", string(entity.StateQueued),
		"attempts", 0,
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return err
	}
	if err := r.Client.HDel(ctx, key, "failed_reason").Err(); err != nil {
		return err
	}
	return r.Client.Expire(ctx, key, r.TTL).Err()
}

// WaitUntilFinished blocks until the job reaches a terminal state, the timeout
// elapses, or ctx is done. Subscribing before the state check closes the race
// with a worker that finishes in between.
func (r *JobRepo) WaitUntilFinished(ctx context.Context, jobID string, timeout time.Duration) error {
	sub := r.Client.Subscribe(ctx, doneChPrefix+jobID)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	handle, err := r.Get(ctx, jobID)
	if err == nil && handle != nil {
		switch handle.State {
		case entity.StateCompleted:
			return nil
		case entity.StateFailed:
			return entity.ErrJobFailed
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return entity.ErrWaitTimeout
		case msg, ok := <-sub.Channel():
			if !ok {
				return entity.ErrWaitTimeout
			}
			if msg.Payload == string(entity.StateFailed) {
				return entity.ErrJobFailed
			}
			return nil
		}
	}
}

func (r *JobRepo) setState(ctx context.Context, jobID string, state entity.JobState) error {
	return r.Client.HSet(ctx, jobKeyPrefix+jobID,
		"state", string(state),
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	).Err()
}
