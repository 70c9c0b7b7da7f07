package progress

import (
	"github.com/google/uuid"

	"github.com/studymill/studymill-backend/internal/domain"
)

// Event is one progress report for one job.
type Event struct {
	JobID    uuid.UUID        `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Progress float64          `json:"progress"`
	Message  string           `json:"message,omitempty"`
}

// Sink receives progress reports. Implementations must be fire-and-forget:
// the pipeline never blocks on, or fails because of, a sink.
type Sink interface {
	Report(ownerUserID uuid.UUID, ev Event)
}

// NopSink discards all reports. Used in tests and when no bus is configured.
type NopSink struct{}

func (NopSink) Report(uuid.UUID, Event) {}
