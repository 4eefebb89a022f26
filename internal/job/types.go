package job

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies where a posting came from. Seed postings are bundled at
// build time and immutable; live postings are rows created through the API.
type Source uint8

const (
	SourceUnknown Source = iota
	SourceSeed
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourceSeed:
		return "seed"
	case SourceLive:
		return "live"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Compensation is a salary range in minor currency units.
type Compensation struct {
	MinCents int64  `json:"min_cents,omitempty"`
	MaxCents int64  `json:"max_cents,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Job is a single posting, unified across the seed set and the live table.
// Seed IDs are decimal strings, live IDs are UUIDs; dedup compares them as
// strings.
type Job struct {
	ID          string        `json:"id"`
	Position    string        `json:"position"`
	CompanyName string        `json:"company_name"`
	Logo        string        `json:"logo,omitempty"`
	Description string        `json:"job_description,omitempty"`
	Type        string        `json:"type,omitempty"`
	PrimaryTag  string        `json:"primary_tag,omitempty"`
	Locations   []string      `json:"locations"`
	WorkMode    string        `json:"work_mode,omitempty"`
	Seniority   string        `json:"seniority,omitempty"`
	Comp        *Compensation `json:"compensation,omitempty"`
	ApplyURL    string        `json:"apply_url"`
	UserID      string        `json:"user_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Source      Source        `json:"-"`

	// Highlighted marks a posting that matched the caller's current search
	// query. It is derived, never persisted.
	Highlighted bool `json:"highlighted,omitempty"`
}

// Validate checks the fields every live posting must carry before insert.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Position) == "" {
		return fmt.Errorf("%w: missing position", ErrInvalidJob)
	}
	if strings.TrimSpace(j.CompanyName) == "" {
		return fmt.Errorf("%w: missing company name", ErrInvalidJob)
	}
	if strings.TrimSpace(j.ApplyURL) == "" {
		return fmt.Errorf("%w: missing apply url", ErrInvalidJob)
	}
	if strings.TrimSpace(j.UserID) == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidJob)
	}
	return nil
}

// Location returns the posting's primary location string, empty when the
// posting carries none.
func (j Job) Location() string {
	if len(j.Locations) == 0 {
		return ""
	}
	return j.Locations[0]
}
