package engine

import (
	"fmt"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// Cursor is the pagination state of one resource sweep.
type Cursor struct {
	Offset    int  `json:"offset"`
	Limit     int  `json:"limit"`
	Exhausted bool `json:"exhausted"`
}

func NewCursor(limit int) Cursor {
	return Cursor{Limit: limit}
}

// Advance moves past a page of n records. A page shorter than the limit
// means the feed has nothing more.
func (c *Cursor) Advance(n int) {
	c.Offset += n
	if n < c.Limit {
		c.Exhausted = true
	}
}

// SyncReport is the outcome of one resource sweep.
type SyncReport struct {
	SyncType models.SyncType `json:"sync_type"`
	Since    time.Time       `json:"since"`
	Pages    int             `json:"pages"`
	Fetched  int             `json:"fetched"`
	// Synced counts records that created or changed a listing.
	Synced    int                  `json:"synced"`
	Created   int                  `json:"created"`
	Updated   int                  `json:"updated"`
	Unchanged int                  `json:"unchanged"`
	Errors    []models.RecordError `json:"errors,omitempty"`
	Cursor    Cursor               `json:"cursor"`
}

// Failed is the number of skipped records.
func (r *SyncReport) Failed() int {
	return len(r.Errors)
}

func (r *SyncReport) Summary() string {
	return fmt.Sprintf("%d pages, %d fetched, %d synced (%d new, %d updated), %d unchanged, %d failed",
		r.Pages, r.Fetched, r.Synced, r.Created, r.Updated, r.Unchanged, r.Failed())
}

// RunReport covers both resources of one run.
type RunReport struct {
	RunID      string      `json:"run_id,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Skipped    bool        `json:"skipped,omitempty"`
	Properties *SyncReport `json:"properties,omitempty"`
	Media      *SyncReport `json:"media,omitempty"`

	PropertiesErr error `json:"-"`
	MediaErr      error `json:"-"`
}

func (r *RunReport) Summary() string {
	if r.Skipped {
		return "skipped"
	}
	s := "properties: "
	if r.Properties != nil {
		s += r.Properties.Summary()
	}
	if r.PropertiesErr != nil {
		s += fmt.Sprintf(" (error: %v)", r.PropertiesErr)
	}
	s += "; media: "
	if r.Media != nil {
		s += r.Media.Summary()
	}
	if r.MediaErr != nil {
		s += fmt.Sprintf(" (error: %v)", r.MediaErr)
	}
	return s
}
