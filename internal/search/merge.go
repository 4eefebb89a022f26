// Package search implements the job listing core: merging the bundled seed
// set with live postings, free-text filtering, typeahead suggestions, and
// wallet-gated pagination.
package search

import (
	"sort"

	"github.com/soldeed/soldeed/internal/job"
)

// Merge combines the seed set with live postings. Every seed posting is kept;
// a live posting is dropped when its ID already appears among the seed IDs.
// The result is ordered by ascending creation time and is a fresh slice.
func Merge(seed, live []job.Job) []job.Job {
	seen := make(map[string]struct{}, len(seed))
	out := make([]job.Job, 0, len(seed)+len(live))
	for _, j := range seed {
		seen[j.ID] = struct{}{}
		out = append(out, j)
	}
	for _, j := range live {
		if _, dup := seen[j.ID]; dup {
			continue
		}
		seen[j.ID] = struct{}{}
		out = append(out, j)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}
