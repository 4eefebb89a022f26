package walletuser

import "context"

// Store persists wallet-derived users.
type Store interface {
	// Register upserts the row for a wallet address. It reports whether a
	// new row was created; concurrent registrations of the same address
	// converge on a single row.
	Register(ctx context.Context, address string) (User, bool, error)
	Get(ctx context.Context, id string) (User, error)
	GetByAddress(ctx context.Context, address string) (User, error)
}
