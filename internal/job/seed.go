package job

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed seed/all_jobs.json
var seedJSON []byte

// seedRecord is the bundled posting shape, which predates the live table and
// nests the organization.
type seedRecord struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	URL       string   `json:"url"`
	CreatedAt int64    `json:"created_at"`
	WorkMode  string   `json:"work_mode"`
	Seniority string   `json:"seniority"`
	CompMin   int64    `json:"compensation_amount_min_cents"`
	CompMax   int64    `json:"compensation_amount_max_cents"`
	CompCcy   string   `json:"compensation_currency"`
	Locations []string `json:"locations"`

	Organization struct {
		CompanyName string `json:"company_name"`
		Logo        string `json:"logo"`
	} `json:"organization"`
}

// SeedJobs parses the bundled posting set. The result is sorted by ascending
// creation time and safe to share: callers receive a fresh slice on each call.
func SeedJobs() ([]Job, error) {
	var records []seedRecord
	if err := json.Unmarshal(seedJSON, &records); err != nil {
		return nil, fmt.Errorf("job: parse seed set: %w", err)
	}

	out := make([]Job, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		id := strconv.FormatInt(rec.ID, 10)
		if rec.ID <= 0 {
			return nil, fmt.Errorf("job: seed record %d: non-positive id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("job: seed record %d: duplicate id %s", i, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(rec.Title) == "" {
			return nil, fmt.Errorf("job: seed record %d: missing title", i)
		}
		if strings.TrimSpace(rec.Organization.CompanyName) == "" {
			return nil, fmt.Errorf("job: seed record %d: missing company name", i)
		}

		j := Job{
			ID:          id,
			Position:    rec.Title,
			CompanyName: rec.Organization.CompanyName,
			Logo:        rec.Organization.Logo,
			Locations:   append([]string(nil), rec.Locations...),
			WorkMode:    rec.WorkMode,
			Seniority:   rec.Seniority,
			ApplyURL:    rec.URL,
			CreatedAt:   time.Unix(rec.CreatedAt, 0).UTC(),
			Source:      SourceSeed,
		}
		if rec.CompMin > 0 || rec.CompMax > 0 {
			j.Comp = &Compensation{
				MinCents: rec.CompMin,
				MaxCents: rec.CompMax,
				Currency: rec.CompCcy,
			}
		}
		out = append(out, j)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}
