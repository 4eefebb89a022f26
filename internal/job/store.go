package job

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("job: not found")
	ErrNotOwner   = errors.New("job: not owner")
	ErrInvalidJob = errors.New("job: invalid job")
)

// Store persists live postings. Seed postings never pass through a Store.
type Store interface {
	// Create inserts a posting. A zero ID is assigned a fresh UUID; the
	// stored posting is returned.
	Create(ctx context.Context, j Job) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	// List returns every live posting, newest first.
	List(ctx context.Context) ([]Job, error)
	// Delete removes a posting owned by userID. It returns ErrNotFound for
	// an unknown id and ErrNotOwner when the row belongs to someone else.
	Delete(ctx context.Context, id, userID string) error
}
