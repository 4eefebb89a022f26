package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soldeed/soldeed/internal/job"
)

var ErrInvalidConfig = errors.New("job/postgres: invalid config")

// Store persists live postings in the jobs table.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("job/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, j job.Job) (job.Job, error) {
	if s == nil || s.pool == nil {
		return job.Job{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := j.Validate(); err != nil {
		return job.Job{}, err
	}
	if strings.TrimSpace(j.ID) == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.Source = job.SourceLive
	j.Highlighted = false

	var logo *string
	if j.Logo != "" {
		logo = &j.Logo
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (
			id,
			company_name,
			position,
			job_description,
			type,
			primary_tag,
			location,
			apply_url,
			logo,
			user_id,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, j.ID, j.CompanyName, j.Position, j.Description, j.Type, j.PrimaryTag,
		j.Location(), j.ApplyURL, logo, j.UserID, j.CreatedAt)
	if err != nil {
		return job.Job{}, fmt.Errorf("job/postgres: insert: %w", err)
	}
	return j, nil
}

func (s *Store) Get(ctx context.Context, id string) (job.Job, error) {
	if s == nil || s.pool == nil {
		return job.Job{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, company_name, position, job_description, type, primary_tag,
		       location, apply_url, logo, user_id, created_at
		FROM jobs
		WHERE id = $1
	`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrNotFound
		}
		return job.Job{}, fmt.Errorf("job/postgres: get: %w", err)
	}
	return j, nil
}

func (s *Store) List(ctx context.Context) ([]job.Job, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, company_name, position, job_description, type, primary_tag,
		       location, apply_url, logo, user_id, created_at
		FROM jobs
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("job/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("job/postgres: scan list row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job/postgres: list rows: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id, userID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("job/postgres: begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	err = tx.QueryRow(ctx, `SELECT user_id FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.ErrNotFound
		}
		return fmt.Errorf("job/postgres: lock delete row: %w", err)
	}
	if owner != userID {
		return job.ErrNotOwner
	}

	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("job/postgres: delete: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("job/postgres: commit delete tx: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (job.Job, error) {
	var (
		j        job.Job
		location string
		logo     *string
	)
	err := row.Scan(
		&j.ID,
		&j.CompanyName,
		&j.Position,
		&j.Description,
		&j.Type,
		&j.PrimaryTag,
		&location,
		&j.ApplyURL,
		&logo,
		&j.UserID,
		&j.CreatedAt,
	)
	if err != nil {
		return job.Job{}, err
	}
	if location != "" {
		j.Locations = []string{location}
	}
	if logo != nil {
		j.Logo = *logo
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.Source = job.SourceLive
	return j, nil
}

var _ job.Store = (*Store)(nil)
