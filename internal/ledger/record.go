package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/aceteam-ai/dream-cli/internal/horde"
)

// Record captures one lifecycle run.
type Record struct {
	// Database ID (set after insert)
	ID int64

	// RunID is generated locally; JobID may be empty for rejected submissions
	RunID string
	JobID string
	Horde string

	// Request
	Prompt    string
	Models    string
	Requested int
	DryRun    bool

	// Outcome
	State        string
	Generations  int
	Kudos        float64
	ErrorMessage string

	// Timing
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64
}

// NewRecord starts a record for req at the current time.
func NewRecord(hordeURL string, req horde.JobRequest) Record {
	models := ""
	for i, m := range req.Models {
		if i > 0 {
			models += ","
		}
		models += m
	}
	return Record{
		RunID:     uuid.New().String(),
		Horde:     hordeURL,
		Prompt:    req.Prompt,
		Models:    models,
		Requested: req.Amount(),
		DryRun:    req.DryRun,
		StartedAt: time.Now().UTC(),
	}
}

// Complete fills the outcome fields from a finished lifecycle.
func (r *Record) Complete(out *horde.Outcome, runErr error) {
	r.CompletedAt = time.Now().UTC()
	r.DurationMs = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	if out != nil {
		r.JobID = out.JobID
		r.State = out.State.String()
		if out.Result != nil {
			r.Kudos = out.Result.Kudos
			r.Generations = len(out.Result.Generations)
		}
		if faultErr := out.Err(); faultErr != nil && runErr == nil {
			runErr = faultErr
		}
	}
	if runErr != nil {
		r.ErrorMessage = runErr.Error()
	}
}
