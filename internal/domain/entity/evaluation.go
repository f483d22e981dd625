package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequestID = errors.New("request_id must be a valid UUID")
	ErrEmptySubmission  = errors.New("either text or audio_url is required")
	ErrMissingFeedback  = errors.New("feedback is required")
)

// EvaluationRequest is the queue message for one submission. RequestID is the
// caller's idempotency key and doubles as the job ID.
type EvaluationRequest struct {
	RequestID string          `json:"request_id"`
	Text      string          `json:"text,omitempty"`
	AudioURL  string          `json:"audio_url,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func (r *EvaluationRequest) Validate() error {
	if err := uuid.Validate(r.RequestID); err != nil {
		return ErrInvalidRequestID
	}
	if r.Text == "" && r.AudioURL == "" {
		return ErrEmptySubmission
	}
	return nil
}

// Canonicalize drops the audio URL when text is present, so a request that
// somehow carries both is processed as a text submission.
func (r *EvaluationRequest) Canonicalize() {
	if r.Text != "" {
		r.AudioURL = ""
	}
}

// ScoreCard is the structured output of the scoring model for one response.
type ScoreCard struct {
	Score        int    `json:"score"`
	Feedback     string `json:"feedback"`
	WhatChanged  string `json:"what_changed"`
	PracticeRule string `json:"practice_rule"`
	TokensUsed   int    `json:"-"`
}

func (s *ScoreCard) Validate() error {
	if s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("score %d out of range 0-100", s.Score)
	}
	if s.Feedback == "" {
		return ErrMissingFeedback
	}
	return nil
}

// Transcript is the output of the transcription adapter.
type Transcript struct {
	Text       string
	DurationMs int
}

// EvaluationResult is the durable record of a completed evaluation.
// At most one row exists per request_id; writes go through an upsert.
type EvaluationResult struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	RequestID     string    `gorm:"size:36;uniqueIndex;not null" json:"request_id"`
	JobID         string    `gorm:"size:36;index;not null" json:"job_id"`
	Score         int       `gorm:"not null" json:"score"`
	Feedback      string    `gorm:"type:text;not null" json:"feedback"`
	WhatChanged   string    `gorm:"type:text" json:"what_changed"`
	PracticeRule  string    `gorm:"type:text" json:"practice_rule"`
	Transcription string    `gorm:"type:text" json:"transcription,omitempty"`
	DurationMs    int       `json:"duration_ms"`
	TokensUsed    int       `json:"tokens_used,omitempty"`
	UserID        string    `gorm:"size:36;index" json:"user_id,omitempty"`
	Metadata      *string   `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *EvaluationResult) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %d out of range 0-100", r.Score)
	}
	if r.Feedback == "" {
		return ErrMissingFeedback
	}
	return nil
}
