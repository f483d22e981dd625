package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"drill-evaluator/internal/domain/entity"
	"drill-evaluator/internal/domain/usecase"
)

type SubmitUseCase interface {
	Submit(ctx context.Context, req entity.EvaluationRequest) (*usecase.Outcome, error)
	SubmitAudio(ctx context.Context, req entity.EvaluationRequest, data []byte, filename, contentType string) (*usecase.Outcome, error)
}

type StatusUseCase interface {
	Status(ctx context.Context, jobID string) (*usecase.Outcome, error)
}

type EvaluationHandler struct {
	Submit SubmitUseCase
	Status StatusUseCase
}

func NewEvaluationHandler(submit SubmitUseCase, status StatusUseCase) *EvaluationHandler {
	return &EvaluationHandler{Submit: submit, Status: status}
}

func (h *EvaluationHandler) Register(group *gin.RouterGroup) {
	group.POST("/evaluate", h.Evaluate)
	group.GET("/evaluate/:job_id/status", h.GetStatus)
}

type submitBody struct {
	RequestID string          `json:"request_id"`
	Text      string          `json:"text"`
	AudioURL  string          `json:"audio_url"`
	Metadata  json.RawMessage `json:"metadata"`
}

type evaluationResponse struct {
	JobID       string                   `json:"job_id"`
	RequestID   string                   `json:"request_id"`
	Status      string                   `json:"status"`
	Result      *entity.EvaluationResult `json:"result"`
	Error       *string                  `json:"error"`
	PollURL     string                   `json:"poll_url,omitempty"`
	PollAfterMs int                      `json:"poll_after_ms"`
}

// Evaluate accepts either a JSON text submission or a multipart audio upload.
// It answers 200 when the evaluation completes within the sync window and
// 202 with a poll URL otherwise; 202 is the normal outcome under load.
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid, _ := userID.(string)

	var (
		outcome *usecase.Outcome
		err     error
	)

	if isMultipart(c) {
		outcome, err = h.evaluateAudio(c, uid)
	} else {
		outcome, err = h.evaluateText(c, uid)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeOutcome(c, outcome)
}

func (h *EvaluationHandler) evaluateText(c *gin.Context, userID string) (*usecase.Outcome, error) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, errMalformedBody
	}
	if body.Text != "" && body.AudioURL != "" {
		return nil, errBothModalities
	}

	req := entity.EvaluationRequest{
		RequestID: body.RequestID,
		Text:      body.Text,
		AudioURL:  body.AudioURL,
		UserID:    userID,
		Metadata:  body.Metadata,
	}
	return h.Submit.Submit(c.Request.Context(), req)
}

func (h *EvaluationHandler) evaluateAudio(c *gin.Context, userID string) (*usecase.Outcome, error) {
	requestID := c.PostForm("request_id")
	if c.PostForm("text") != "" {
		return nil, errBothModalities
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return nil, entity.ErrEmptySubmission
	}

	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var metadata json.RawMessage
	if raw := c.PostForm("metadata"); raw != "" && json.Valid([]byte(raw)) {
		metadata = json.RawMessage(raw)
	}

	req := entity.EvaluationRequest{
		RequestID: requestID,
		UserID:    userID,
		Metadata:  metadata,
	}
	return h.Submit.SubmitAudio(c.Request.Context(), req, data, file.Filename, file.Header.Get("Content-Type"))
}

func (h *EvaluationHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	outcome, err := h.Status.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, entity.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(c, outcome))
}

var (
	errBothModalities = errors.New("text and audio are mutually exclusive")
	errMalformedBody  = errors.New("invalid request body")
)

func (h *EvaluationHandler) writeOutcome(c *gin.Context, outcome *usecase.Outcome) {
	resp := h.toResponse(c, outcome)

	switch outcome.Status {
	case usecase.StatusCompleted:
		c.JSON(http.StatusOK, resp)
	case usecase.StatusFailed:
		c.JSON(http.StatusInternalServerError, resp)
	default:
		c.JSON(http.StatusAccepted, resp)
	}
}

func (h *EvaluationHandler) toResponse(c *gin.Context, outcome *usecase.Outcome) evaluationResponse {
	resp := evaluationResponse{
		JobID:       outcome.JobID,
		RequestID:   outcome.RequestID,
		Status:      string(outcome.Status),
		Result:      outcome.Result,
		PollAfterMs: int(outcome.PollAfter.Milliseconds()),
	}
	if outcome.Status == usecase.StatusFailed {
		// Generic code only; internal failure detail stays out of responses.
		msg := "evaluation_failed"
		resp.Error = &msg
	}
	if !outcome.Status.Resolved() {
		resp.PollURL = "/api/v1/evaluate/" + outcome.JobID + "/status"
	}
	return resp
}

func (h *EvaluationHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidRequestID),
		errors.Is(err, entity.ErrEmptySubmission),
		errors.Is(err, errBothModalities),
		errors.Is(err, errMalformedBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func isMultipart(c *gin.Context) bool {
	contentType := c.ContentType()
	return contentType == "multipart/form-data"
}
