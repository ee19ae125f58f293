package models

import (
	"time"
)

// ItineraryStatus values persisted in Postgres. Transitions are monotonic:
// pending -> processing -> completed|failed. Nothing moves backward.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Itinerary is a multi-day travel plan request and, once processed, its result.
type Itinerary struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Destination string     `json:"destination"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	Budget      *string    `json:"budget,omitempty"`
	Interests   []string   `json:"interests,omitempty"`
	Status      string     `json:"processing_status"`
	Progress    int        `json:"progress"`
	Content     *string    `json:"content,omitempty"`
	ModelUsed   *string    `json:"model_used,omitempty"`
	PDFFilename *string    `json:"pdf_filename,omitempty"`
	PDFPath     *string    `json:"pdf_path,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Days returns the inclusive day count of the trip.
func (it Itinerary) Days() int {
	return InclusiveDays(it.StartDate, it.EndDate)
}

// InclusiveDays counts calendar days between start and end, both ends included.
func InclusiveDays(start, end time.Time) int {
	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)
	return int(end.Sub(start).Hours()/24) + 1
}

// ItineraryJob is the ephemeral unit of work carried by the queue. The record
// itself stays in Postgres; the queue only moves the reference around.
type ItineraryJob struct {
	ItineraryID string    `json:"itinerary_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Attempt     int       `json:"attempt"`
}
