package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soldeed/soldeed/internal/job"
)

var ErrInvalidConfig = errors.New("search: invalid config")

// Lister yields the live postings an Index merges with the seed set.
type Lister interface {
	List(ctx context.Context) ([]job.Job, error)
}

type IndexConfig struct {
	// Seed is the immutable bundled posting set.
	Seed []job.Job
	// Live reads the current live postings on each rebuild.
	Live Lister

	// DebounceInterval coalesces Invalidate bursts. Defaults to 300ms.
	DebounceInterval time.Duration
	// RebuildTimeout bounds a single rebuild's live read. Defaults to 30s.
	RebuildTimeout time.Duration

	Logger *slog.Logger
}

// Index holds the merged listing snapshot served to searches and
// suggestions. Reads never block on rebuilds: a rebuild swaps in a fresh
// slice, and a failed rebuild leaves the previous snapshot intact.
type Index struct {
	seed           []job.Job
	live           Lister
	rebuildTimeout time.Duration
	log            *slog.Logger

	mu       sync.RWMutex
	snapshot []job.Job

	debouncer *Debouncer
}

func NewIndex(cfg IndexConfig) (*Index, error) {
	if cfg.Live == nil {
		return nil, fmt.Errorf("%w: nil live lister", ErrInvalidConfig)
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounce
	}
	if cfg.RebuildTimeout <= 0 {
		cfg.RebuildTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ix := &Index{
		seed:           append([]job.Job(nil), cfg.Seed...),
		live:           cfg.Live,
		rebuildTimeout: cfg.RebuildTimeout,
		log:            cfg.Logger,
		snapshot:       Merge(cfg.Seed, nil),
	}
	ix.debouncer = NewDebouncer(cfg.DebounceInterval, ix.rebuildInBackground)
	return ix, nil
}

// Rebuild re-reads the live postings and swaps in a fresh merged snapshot.
func (ix *Index) Rebuild(ctx context.Context) error {
	live, err := ix.live.List(ctx)
	if err != nil {
		return fmt.Errorf("search: rebuild index: %w", err)
	}
	merged := Merge(ix.seed, live)

	ix.mu.Lock()
	ix.snapshot = merged
	ix.mu.Unlock()
	return nil
}

// Invalidate requests a debounced rebuild; bursts of mutations trigger a
// single one.
func (ix *Index) Invalidate() {
	ix.debouncer.Trigger()
}

// Snapshot returns the current merged listing. The slice is shared and must
// not be mutated by callers; Filter and Paginator copy before writing.
func (ix *Index) Snapshot() []job.Job {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snapshot
}

// Close stops the pending debounced rebuild, if any.
func (ix *Index) Close() {
	ix.debouncer.Stop()
}

func (ix *Index) rebuildInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), ix.rebuildTimeout)
	defer cancel()
	if err := ix.Rebuild(ctx); err != nil {
		ix.log.Error("debounced index rebuild failed", "err", err)
	}
}
