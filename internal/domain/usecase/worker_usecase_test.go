package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drill-evaluator/internal/domain/entity"
	"drill-evaluator/pkg/analytics"
)

type recordingEmitter struct {
	events []analytics.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event analytics.Event) {
	r.events = append(r.events, event)
}

func newWorker(results *fakeResultRepo, jobs *fakeJobRepo, tr *fakeTranscriber, sc *fakeScorer, em *recordingEmitter) *WorkerUseCase {
	uc := NewWorkerUseCase(results, jobs, tr, sc, em)
	uc.BackoffBase = time.Millisecond
	return uc
}

func goodCard() *entity.ScoreCard {
	return &entity.ScoreCard{
		Score:        74,
		Feedback:     "Lead with the outcome before the method.",
		WhatChanged:  "More concrete than the previous attempt.",
		PracticeRule: "State the result in the first sentence.",
		TokensUsed:   412,
	}
}

func TestWorkerScoresAndPersistsTextJob(t *testing.T) {
	results := newFakeResultRepo()
	jobs := newFakeJobRepo()
	scorer := &fakeScorer{cards: []*entity.ScoreCard{goodCard()}}
	emitter := &recordingEmitter{}
	uc := newWorker(results, jobs, &fakeTranscriber{}, scorer, emitter)

	job := entity.EvaluationRequest{
		RequestID: testRequestID,
		Text:      "First I would reproduce the bug locally.",
		UserID:    "user-1",
		Metadata:  json.RawMessage(`{"question_id":"q-7"}`),
	}
	require.NoError(t, uc.Handle(context.Background(), job))

	require.Len(t, results.upserts, 1)
	persisted := results.upserts[0]
	assert.Equal(t, testRequestID, persisted.RequestID)
	assert.Equal(t, testRequestID, persisted.JobID)
	assert.Equal(t, 74, persisted.Score)
	assert.Equal(t, 412, persisted.TokensUsed)
	assert.Equal(t, "user-1", persisted.UserID)
	require.NotNil(t, persisted.Metadata)
	assert.JSONEq(t, `{"question_id":"q-7"}`, *persisted.Metadata)
	assert.Empty(t, persisted.Transcription)

	assert.Equal(t, []string{testRequestID}, jobs.completedIDs)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, "evaluation_completed", emitter.events[0].Name)
}

func TestWorkerTranscribesAudioJob(t *testing.T) {
	results := newFakeResultRepo()
	jobs := newFakeJobRepo()
	transcriber := &fakeTranscriber{transcript: &entity.Transcript{Text: "my answer from audio", DurationMs: 5400}}
	scorer := &fakeScorer{cards: []*entity.ScoreCard{goodCard()}}
	uc := newWorker(results, jobs, transcriber, scorer, &recordingEmitter{})

	job := entity.EvaluationRequest{
		RequestID: testRequestID,
		AudioURL:  "https://storage.local/audio/r1/a.wav",
	}
	require.NoError(t, uc.Handle(context.Background(), job))

	assert.Equal(t, 1, transcriber.calls)
	require.Len(t, scorer.gotAnswers, 1)
	assert.Equal(t, "my answer from audio", scorer.gotAnswers[0], "the scorer must see the transcript")
	require.Len(t, results.upserts, 1)
	assert.Equal(t, "my answer from audio", results.upserts[0].Transcription)
}

func TestWorkerSkipsPaidWorkWhenResultExists(t *testing.T) {
	results := newFakeResultRepo()
	results.byRequest[testRequestID] = storedResult()
	jobs := newFakeJobRepo()
	transcriber := &fakeTranscriber{}
	scorer := &fakeScorer{cards: []*entity.ScoreCard{goodCard()}}
	uc := newWorker(results, jobs, transcriber, scorer, &recordingEmitter{})

	job := entity.EvaluationRequest{RequestID: testRequestID, Text: "retry delivery"}
	require.NoError(t, uc.Handle(context.Background(), job))

	assert.Zero(t, scorer.calls, "redelivery must not re-bill the model")
	assert.Zero(t, transcriber.calls)
	assert.Empty(t, results.upserts)
	assert.Equal(t, []string{testRequestID}, jobs.completedIDs)
}

func TestWorkerRejectsOutOfSchemaScore(t *testing.T) {
	tests := []struct {
		name string
		card *entity.ScoreCard
	}{
		{"score above range", &entity.ScoreCard{Score: 150, Feedback: "fine"}},
		{"score below range", &entity.ScoreCard{Score: -3, Feedback: "fine"}},
		{"missing feedback", &entity.ScoreCard{Score: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := newFakeResultRepo()
			jobs := newFakeJobRepo()
			scorer := &fakeScorer{cards: []*entity.ScoreCard{tt.card}}
			uc := newWorker(results, jobs, &fakeTranscriber{}, scorer, &recordingEmitter{})

			err := uc.Handle(context.Background(), entity.EvaluationRequest{RequestID: testRequestID, Text: "x"})
			require.Error(t, err)

			assert.Empty(t, results.upserts, "out-of-schema output must never be persisted")
			assert.Equal(t, 1, scorer.calls, "schema violations are not retried")
			assert.Contains(t, jobs.failed[testRequestID], "scoring output rejected")
		})
	}
}

func TestWorkerRetriesTransientScoringFailure(t *testing.T) {
	results := newFakeResultRepo()
	jobs := newFakeJobRepo()
	scorer := &fakeScorer{
		errs:  []error{fmt.Errorf("rate limited"), fmt.Errorf("rate limited")},
		cards: []*entity.ScoreCard{nil, nil, goodCard()},
	}
	uc := newWorker(results, jobs, &fakeTranscriber{}, scorer, &recordingEmitter{})

	require.NoError(t, uc.Handle(context.Background(), entity.EvaluationRequest{RequestID: testRequestID, Text: "x"}))

	assert.Equal(t, 3, scorer.calls)
	assert.Len(t, results.upserts, 1)
	assert.Equal(t, []string{testRequestID, testRequestID, testRequestID}, jobs.activeIDs)
}

func TestWorkerFailsTerminallyAfterRetryBudget(t *testing.T) {
	results := newFakeResultRepo()
	jobs := newFakeJobRepo()
	scorer := &fakeScorer{
		errs:  []error{fmt.Errorf("model down"), fmt.Errorf("model down"), fmt.Errorf("model down")},
		cards: []*entity.ScoreCard{nil, nil, nil},
	}
	emitter := &recordingEmitter{}
	uc := newWorker(results, jobs, &fakeTranscriber{}, scorer, emitter)

	err := uc.Handle(context.Background(), entity.EvaluationRequest{RequestID: testRequestID, Text: "x"})
	require.Error(t, err)

	assert.Equal(t, 3, scorer.calls)
	assert.Empty(t, results.upserts)
	assert.Contains(t, jobs.failed[testRequestID], "model down")
	require.Len(t, emitter.events, 1)
	assert.Equal(t, "evaluation_failed", emitter.events[0].Name)
}

func TestWorkerRunsAtLeastOnceWithZeroAttemptBudget(t *testing.T) {
	results := newFakeResultRepo()
	jobs := newFakeJobRepo()
	scorer := &fakeScorer{
		errs:  []error{fmt.Errorf("model down")},
		cards: []*entity.ScoreCard{nil},
	}
	uc := newWorker(results, jobs, &fakeTranscriber{}, scorer, &recordingEmitter{})
	uc.MaxAttempts = 0

	err := uc.Handle(context.Background(), entity.EvaluationRequest{RequestID: testRequestID, Text: "x"})
	require.Error(t, err)

	assert.Equal(t, 1, scorer.calls)
	assert.Contains(t, jobs.failed[testRequestID], "model down")
}

func TestWorkerTranscriptionFailureSurfacesAsJobFailure(t *testing.T) {
	results := newFakeResultRepo()
	jobs := newFakeJobRepo()
	transcriber := &fakeTranscriber{err: fmt.Errorf("asr unavailable")}
	scorer := &fakeScorer{cards: []*entity.ScoreCard{goodCard()}}
	uc := newWorker(results, jobs, transcriber, scorer, &recordingEmitter{})

	err := uc.Handle(context.Background(), entity.EvaluationRequest{RequestID: testRequestID, AudioURL: "https://x/a.wav"})
	require.Error(t, err)

	assert.Zero(t, scorer.calls, "scoring must not run without a transcript")
	assert.Empty(t, results.upserts)
	assert.Contains(t, jobs.failed[testRequestID], "transcribe")
}
