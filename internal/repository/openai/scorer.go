package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"drill-evaluator/internal/domain/entity"
)

const scoringSystemPrompt = `You are an interview coach scoring a candidate's spoken or written answer to an interview question.

Score the answer from 0 to 100 and give concrete, actionable feedback.

Return strict JSON with structure:
{
  "score": integer between 0 and 100,
  "feedback": string,
  "what_changed": string describing what improved or regressed versus a typical earlier attempt,
  "practice_rule": string with one concrete rule to practice next
}

Return ONLY the raw JSON without any markdown formatting, code blocks, or additional text.`

// Scorer wraps the chat-completion call that grades one answer.
type Scorer struct {
	client *openai.Client
	model  string
}

func NewScorer(apiKey, model string) *Scorer {
	return &Scorer{client: openai.NewClient(apiKey), model: model}
}

// Score grades the answer text. Metadata (question, content pack) is passed
// through as context for the model but never interpreted here.
func (s *Scorer) Score(ctx context.Context, answer string, metadata json.RawMessage) (*entity.ScoreCard, error) {
	user := "Answer:\n" + answer
	if len(metadata) > 0 {
		user = "Context:\n" + string(metadata) + "\n\n" + user
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scoringSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response")
	}

	cleaned := cleanJSONResponse(resp.Choices[0].Message.Content)

	card := &entity.ScoreCard{}
	if err := json.Unmarshal([]byte(cleaned), card); err != nil {
		return nil, fmt.Errorf("failed to parse scoring output: %w\nResponse: %s", err, cleaned)
	}
	card.TokensUsed = resp.Usage.TotalTokens

	return card, nil
}

// cleanJSONResponse strips markdown fences and surrounding prose the model
// sometimes adds around the JSON body.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	if strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(content, "```")
	}

	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start != -1 && end != -1 && end > start {
		content = content[start : end+1]
	}

	return strings.TrimSpace(content)
}
