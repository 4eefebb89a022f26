package search

import (
	"sort"
	"strings"

	"github.com/soldeed/soldeed/internal/job"
)

const (
	// MaxTitleSuggestions caps the typeahead list for the title field.
	MaxTitleSuggestions = 8
	// MaxLocationSuggestions caps the typeahead list for the location field.
	MaxLocationSuggestions = 10
	// MinQueryLen gates suggestion computation for very short queries.
	MinQueryLen = 2
)

// TitleSuggestions returns up to MaxTitleSuggestions unique position titles
// and company names containing the query, prefix matches first. Queries
// shorter than MinQueryLen yield nothing; so does an empty candidate set —
// no synthetic fallbacks.
func TitleSuggestions(jobs []job.Job, query string) []string {
	candidates := make([]string, 0, 2*len(jobs))
	for _, j := range jobs {
		candidates = append(candidates, j.Position)
	}
	for _, j := range jobs {
		candidates = append(candidates, j.CompanyName)
	}
	return rankSuggestions(candidates, query, MaxTitleSuggestions)
}

// LocationSuggestions returns up to MaxLocationSuggestions unique location
// strings containing the query, prefix matches first.
func LocationSuggestions(jobs []job.Job, query string) []string {
	var candidates []string
	for _, j := range jobs {
		for _, loc := range j.Locations {
			if loc != "" {
				candidates = append(candidates, loc)
			}
		}
	}
	return rankSuggestions(candidates, query, MaxLocationSuggestions)
}

// rankSuggestions dedupes the candidates containing term and sorts prefix
// matches ahead of contains-only matches, keeping insertion order within
// each rank.
func rankSuggestions(candidates []string, query string, limit int) []string {
	term := strings.ToLower(strings.TrimSpace(query))
	if len(term) < MinQueryLen {
		return nil
	}

	seen := make(map[string]struct{}, len(candidates))
	matched := make([]string, 0, limit)
	for _, c := range candidates {
		lower := strings.ToLower(c)
		if !strings.Contains(lower, term) {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(a, b int) bool {
		aPrefix := strings.HasPrefix(strings.ToLower(matched[a]), term)
		bPrefix := strings.HasPrefix(strings.ToLower(matched[b]), term)
		return aPrefix && !bPrefix
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
