package pipeline

import (
	"errors"
	"fmt"

	"github.com/amishk599/rolecall/internal/queue"
	"github.com/amishk599/rolecall/internal/retry"
)

// Queue and job names.
const (
	ScrapeQueue   = "scrape"
	TriageQueue   = "triage"
	ScrapeJobName = "scrape-board"
	TriageJobName = "triage-job"
)

var errInvalidPayload = errors.New("invalid job payload")

// ScrapePayload asks the scrape worker to run one board for one profile.
type ScrapePayload struct {
	ProfileID string `json:"profileId"`
	Board     string `json:"board"`
}

// Validate reports missing fields.
func (p ScrapePayload) Validate() error {
	switch {
	case p.ProfileID == "":
		return fmt.Errorf("%w: profileId is required", errInvalidPayload)
	case p.Board == "":
		return fmt.Errorf("%w: board is required", errInvalidPayload)
	}
	return nil
}

// TriagePayload asks the triage worker to classify one listing for one profile.
type TriagePayload struct {
	JobListingID string `json:"jobListingId"`
	ProfileID    string `json:"profileId"`
	UserID       string `json:"userId"`
}

// Validate reports missing fields.
func (p TriagePayload) Validate() error {
	switch {
	case p.JobListingID == "":
		return fmt.Errorf("%w: jobListingId is required", errInvalidPayload)
	case p.ProfileID == "":
		return fmt.Errorf("%w: profileId is required", errInvalidPayload)
	case p.UserID == "":
		return fmt.Errorf("%w: userId is required", errInvalidPayload)
	}
	return nil
}

// decode reads and validates a job payload. Failures are permanent: the same
// bytes will never decode differently on a retry.
func decode[P interface{ Validate() error }](job queue.Job) (P, error) {
	var p P
	if err := job.Decode(&p); err != nil {
		return p, retry.Permanent(fmt.Errorf("%w: %v", errInvalidPayload, err))
	}
	if err := p.Validate(); err != nil {
		return p, retry.Permanent(err)
	}
	return p, nil
}
