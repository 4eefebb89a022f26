package search

import (
	"strings"

	"github.com/soldeed/soldeed/internal/job"
)

// Filter returns the postings matching both queries. The title query matches
// the position or the company name, the location query matches any of the
// posting's location strings; both are case-insensitive substring checks and
// an empty query is always true. Input order is preserved.
//
// When a title query is present, returned postings are flagged Highlighted.
func Filter(jobs []job.Job, title, location string) []job.Job {
	title = strings.ToLower(strings.TrimSpace(title))
	location = strings.ToLower(strings.TrimSpace(location))
	if title == "" && location == "" {
		return append([]job.Job(nil), jobs...)
	}

	out := make([]job.Job, 0, len(jobs))
	for _, j := range jobs {
		if !matchesTitle(j, title) || !matchesLocation(j, location) {
			continue
		}
		if title != "" {
			j.Highlighted = true
		}
		out = append(out, j)
	}
	return out
}

func matchesTitle(j job.Job, title string) bool {
	if title == "" {
		return true
	}
	return strings.Contains(strings.ToLower(j.Position), title) ||
		strings.Contains(strings.ToLower(j.CompanyName), title)
}

func matchesLocation(j job.Job, location string) bool {
	if location == "" {
		return true
	}
	for _, loc := range j.Locations {
		if loc != "" && strings.Contains(strings.ToLower(loc), location) {
			return true
		}
	}
	return false
}
