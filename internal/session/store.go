// Package session issues and resolves the opaque bearer tokens that gate
// authenticated API operations.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig = errors.New("session: invalid config")
	ErrNotFound      = errors.New("session: not found")
)

const (
	// DefaultTTL is how long a session stays valid without renewal.
	DefaultTTL = 24 * time.Hour

	tokenBytes = 32
)

// Session binds a bearer token to a wallet-derived user.
type Session struct {
	Token         string    `json:"token"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Store persists sessions keyed by token.
type Store interface {
	Create(ctx context.Context, userID, walletAddress string, ttl time.Duration) (Session, error)
	// Get resolves a token, returning ErrNotFound for unknown or expired
	// tokens.
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

func newToken() (string, error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
