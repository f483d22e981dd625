package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"drill-evaluator/internal/domain/entity"
)

type fakeResultRepo struct {
	byRequest map[string]*entity.EvaluationResult
	byJob     map[string]*entity.EvaluationResult

	// requestSeq, when set, scripts successive GetByRequestID returns.
	requestSeq []*entity.EvaluationResult

	upserts   []*entity.EvaluationResult
	upsertErr error
	jobErr    error
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{
		byRequest: make(map[string]*entity.EvaluationResult),
		byJob:     make(map[string]*entity.EvaluationResult),
	}
}

func (f *fakeResultRepo) Upsert(_ context.Context, result *entity.EvaluationResult) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if _, ok := f.byRequest[result.RequestID]; ok {
		return nil
	}
	f.byRequest[result.RequestID] = result
	f.byJob[result.JobID] = result
	f.upserts = append(f.upserts, result)
	return nil
}

func (f *fakeResultRepo) GetByRequestID(_ context.Context, requestID string) (*entity.EvaluationResult, error) {
	if len(f.requestSeq) > 0 {
		head := f.requestSeq[0]
		f.requestSeq = f.requestSeq[1:]
		return head, nil
	}
	return f.byRequest[requestID], nil
}

func (f *fakeResultRepo) GetByJobID(_ context.Context, jobID string) (*entity.EvaluationResult, error) {
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	return f.byJob[jobID], nil
}

type fakeJobRepo struct {
	createdIDs   []string
	createExists bool

	// handles scripts successive Get returns; nil entries mean "missing".
	handles   []*entity.JobHandle
	handleIdx int
	getErr    error

	waitErr   error
	waitCalls int

	activeIDs    []string
	completedIDs []string
	failed       map[string]string
	resetCalls   int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{failed: make(map[string]string)}
}

func (f *fakeJobRepo) Create(_ context.Context, jobID string) (bool, error) {
	f.createdIDs = append(f.createdIDs, jobID)
	return !f.createExists, nil
}

func (f *fakeJobRepo) Get(_ context.Context, _ string) (*entity.JobHandle, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.handles) == 0 {
		return nil, nil
	}
	h := f.handles[f.handleIdx]
	if f.handleIdx < len(f.handles)-1 {
		f.handleIdx++
	}
	return h, nil
}

func (f *fakeJobRepo) MarkActive(_ context.Context, jobID string) error {
	f.activeIDs = append(f.activeIDs, jobID)
	return nil
}

func (f *fakeJobRepo) MarkCompleted(_ context.Context, jobID string) error {
	f.completedIDs = append(f.completedIDs, jobID)
	return nil
}

func (f *fakeJobRepo) MarkFailed(_ context.Context, jobID, reason string) error {
	f.failed[jobID] = reason
	return nil
}

func (f *fakeJobRepo) ResetForRetry(_ context.Context, _ string) error {
	f.resetCalls++
	return nil
}

func (f *fakeJobRepo) WaitUntilFinished(_ context.Context, _ string, _ time.Duration) error {
	f.waitCalls++
	return f.waitErr
}

type fakePublisher struct {
	bodies   []json.RawMessage
	failures int
}

func (f *fakePublisher) Publish(_ context.Context, body json.RawMessage) error {
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("broker unavailable")
	}
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeAudioStore struct {
	uploads map[string][]byte
}

func newFakeAudioStore() *fakeAudioStore {
	return &fakeAudioStore{uploads: make(map[string][]byte)}
}

func (f *fakeAudioStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	f.uploads[key] = data
	return nil
}

func (f *fakeAudioStore) GetPresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.local/" + key + "?sig=test", nil
}

type fakeTranscriber struct {
	transcript *entity.Transcript
	err        error
	calls      int
	gotURLs    []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioURL string) (*entity.Transcript, error) {
	f.calls++
	f.gotURLs = append(f.gotURLs, audioURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeScorer struct {
	cards      []*entity.ScoreCard
	errs       []error
	calls      int
	gotAnswers []string
}

func (f *fakeScorer) Score(_ context.Context, answer string, _ json.RawMessage) (*entity.ScoreCard, error) {
	i := f.calls
	f.calls++
	f.gotAnswers = append(f.gotAnswers, answer)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.cards) {
		return f.cards[i], nil
	}
	return f.cards[len(f.cards)-1], nil
}
