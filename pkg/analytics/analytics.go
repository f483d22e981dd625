package analytics

import (
	"context"
	"log"
	"time"
)

// Event is a structured, informational record of a pipeline outcome.
// Emission is best-effort and must never affect job processing.
type Event struct {
	Name      string                 `json:"name"`
	JobID     string                 `json:"job_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Props     map[string]interface{} `json:"props,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter writes events to the process log. It stands in for an external
// analytics sink in deployments that don't configure one.
type LogEmitter struct{}

func NewLogEmitter() *LogEmitter {
	return &LogEmitter{}
}

func (e *LogEmitter) Emit(_ context.Context, event Event) {
	log.Printf("analytics: %s job=%s user=%s props=%v\n",
		event.Name, event.JobID, event.UserID, event.Props)
}
