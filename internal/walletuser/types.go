package walletuser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

var (
	ErrNotFound       = errors.New("walletuser: not found")
	ErrInvalidAddress = errors.New("walletuser: invalid wallet address")
)

// User is an identity row auto-created the first time a wallet connects.
// It never changes after creation.
type User struct {
	ID            string
	WalletAddress string
	CreatedAt     time.Time
}

// addressLen is the raw length of a Solana public key.
const addressLen = 32

// NormalizeAddress validates a base58-encoded Solana wallet address and
// returns its canonical (trimmed) form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != addressLen {
		return "", fmt.Errorf("%w: decoded length %d, want %d", ErrInvalidAddress, len(raw), addressLen)
	}
	return addr, nil
}

// DecodeAddress returns the raw 32-byte public key behind a wallet address.
func DecodeAddress(addr string) ([]byte, error) {
	addr, err := NormalizeAddress(addr)
	if err != nil {
		return nil, err
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return raw, nil
}
