package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"drill-evaluator/internal/domain/entity"
)

// Transcriber converts a stored audio recording into transcript text plus
// duration via a Whisper-style speech-to-text call.
type Transcriber struct {
	client *openai.Client
	model  string
	http   *http.Client
}

func NewTranscriber(apiKey, model string) *Transcriber {
	return &Transcriber{
		client: openai.NewClient(apiKey),
		model:  model,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, audioURL string) (*entity.Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build audio request: %w", err)
	}

	res, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch audio: unexpected status %d", res.StatusCode)
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		Reader:   res.Body,
		FilePath: audioFileName(audioURL),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}

	return &entity.Transcript{
		Text:       resp.Text,
		DurationMs: int(resp.Duration * 1000),
	}, nil
}

// audioFileName recovers a file name with extension from the URL path; the
// transcription API infers the container format from it.
func audioFileName(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil {
		return "audio.webm"
	}
	name := path.Base(u.Path)
	if path.Ext(name) == "" {
		return "audio.webm"
	}
	return name
}
