package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drill-evaluator/internal/domain/entity"
)

func TestStatusStoreIsAuthoritative(t *testing.T) {
	results := newFakeResultRepo()
	results.byJob[testRequestID] = storedResult()
	// The queue still shows the job as active; the persisted result wins.
	jobs := newFakeJobRepo()
	jobs.handles = []*entity.JobHandle{{JobID: testRequestID, State: entity.StateActive}}
	uc := NewStatusUseCase(results, jobs)

	outcome, err := uc.Status(context.Background(), testRequestID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, 82, outcome.Result.Score)
	assert.Zero(t, outcome.PollAfter)
}

func TestStatusQueueStates(t *testing.T) {
	tests := []struct {
		name  string
		state entity.JobState
		want  Status
	}{
		{"queued", entity.StateQueued, StatusQueued},
		{"active maps to processing", entity.StateActive, StatusProcessing},
		{"completed but not durable maps to processing", entity.StateCompleted, StatusProcessing},
		{"failed", entity.StateFailed, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newFakeJobRepo()
			jobs.handles = []*entity.JobHandle{{JobID: testRequestID, State: tt.state}}
			uc := NewStatusUseCase(newFakeResultRepo(), jobs)

			outcome, err := uc.Status(context.Background(), testRequestID)
			require.NoError(t, err)

			assert.Equal(t, tt.want, outcome.Status)
			assert.Nil(t, outcome.Result, "queue state must never yield a result body")
			if outcome.Status.Resolved() {
				assert.Zero(t, outcome.PollAfter)
			} else {
				assert.Equal(t, 3*time.Second, outcome.PollAfter)
			}
		})
	}
}

func TestStatusUnknownJob(t *testing.T) {
	uc := NewStatusUseCase(newFakeResultRepo(), newFakeJobRepo())

	_, err := uc.Status(context.Background(), testRequestID)
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
}

func TestStatusQueueUnreachableWithEmptyStore(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.getErr = fmt.Errorf("dial tcp: connection refused")
	uc := NewStatusUseCase(newFakeResultRepo(), jobs)

	_, err := uc.Status(context.Background(), testRequestID)
	assert.ErrorIs(t, err, entity.ErrJobNotFound, "an unreachable queue with no durable result must not be reported as an internal error")
}

func TestStatusStoreErrorWithLiveQueue(t *testing.T) {
	results := newFakeResultRepo()
	results.jobErr = fmt.Errorf("pq: connection reset")
	jobs := newFakeJobRepo()
	jobs.handles = []*entity.JobHandle{{JobID: testRequestID, State: entity.StateActive}}
	uc := NewStatusUseCase(results, jobs)

	outcome, err := uc.Status(context.Background(), testRequestID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, outcome.Status)
}
