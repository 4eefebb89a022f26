package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soldeed/soldeed/internal/walletuser"
)

var ErrInvalidConfig = errors.New("walletuser/postgres: invalid config")

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
		return fmt.Errorf("walletuser/postgres: ensure schema: %w", err)
	}
	return nil
}

// Register inserts the row for a wallet address; a concurrent insert of the
// same address loses the conflict and reads the winner's row back.
func (s *Store) Register(ctx context.Context, address string) (walletuser.User, bool, error) {
	if s == nil || s.pool == nil {
		return walletuser.User{}, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	address, err := walletuser.NormalizeAddress(address)
	if err != nil {
		return walletuser.User{}, false, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_users (id, wallet_address)
		VALUES ($1, $2)
		ON CONFLICT (wallet_address) DO NOTHING
	`, uuid.NewString(), address)
	if err != nil {
		return walletuser.User{}, false, fmt.Errorf("walletuser/postgres: insert: %w", err)
	}
	created := tag.RowsAffected() == 1

	u, err := s.GetByAddress(ctx, address)
	if err != nil {
		return walletuser.User{}, false, err
	}
	return u, created, nil
}

func (s *Store) Get(ctx context.Context, id string) (walletuser.User, error) {
	if s == nil || s.pool == nil {
		return walletuser.User{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return s.get(ctx, `SELECT id, wallet_address, created_at FROM wallet_users WHERE id = $1`, id)
}

func (s *Store) GetByAddress(ctx context.Context, address string) (walletuser.User, error) {
	if s == nil || s.pool == nil {
		return walletuser.User{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	address, err := walletuser.NormalizeAddress(address)
	if err != nil {
		return walletuser.User{}, err
	}
	return s.get(ctx, `SELECT id, wallet_address, created_at FROM wallet_users WHERE wallet_address = $1`, address)
}

func (s *Store) get(ctx context.Context, query, arg string) (walletuser.User, error) {
	var u walletuser.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.WalletAddress, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return walletuser.User{}, walletuser.ErrNotFound
		}
		return walletuser.User{}, fmt.Errorf("walletuser/postgres: get: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

var _ walletuser.Store = (*Store)(nil)
