// Package walletauth implements the challenge/response sign-in flow for
// Solana wallets. The server issues a single-use nonce bound to a wallet
// address; the client signs the canonical challenge message with the wallet's
// ed25519 key and posts the signature back for verification.
package walletauth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soldeed/soldeed/internal/walletuser"
)

var (
	ErrInvalidConfig    = errors.New("walletauth: invalid config")
	ErrUnknownChallenge = errors.New("walletauth: unknown or expired challenge")
	ErrBadSignature     = errors.New("walletauth: signature verification failed")
)

const (
	defaultTTL        = 5 * time.Minute
	defaultMaxPending = 10_000
	nonceBytes        = 16
)

// Challenge is a pending sign-in challenge.
type Challenge struct {
	WalletAddress string
	Nonce         string
	Message       string
	ExpiresAt     time.Time
}

// Message builds the canonical text a wallet signs for the given address and
// nonce. Any change here invalidates in-flight challenges.
func Message(address, nonce string) string {
	return fmt.Sprintf("SolDeed wants you to sign in with your Solana account:\n%s\n\nNonce: %s", address, nonce)
}

type Config struct {
	// TTL bounds how long an issued nonce stays valid. Defaults to 5m.
	TTL time.Duration
	// MaxPending caps the number of outstanding challenges; the oldest is
	// evicted beyond it. Defaults to 10000.
	MaxPending int

	Now func() time.Time
}

// Challenger issues and verifies sign-in challenges. Nonces are single-use:
// a successful or failed verification consumes the nonce either way.
type Challenger struct {
	mu      sync.Mutex
	pending map[string]Challenge

	ttl        time.Duration
	maxPending int
	now        func() time.Time
}

func NewChallenger(cfg Config) *Challenger {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Challenger{
		pending:    make(map[string]Challenge),
		ttl:        cfg.TTL,
		maxPending: cfg.MaxPending,
		now:        cfg.Now,
	}
}

// Issue creates a fresh challenge for a wallet address, replacing any nonce
// previously issued to the same address.
func (c *Challenger) Issue(address string) (Challenge, error) {
	address, err := walletuser.NormalizeAddress(address)
	if err != nil {
		return Challenge{}, err
	}

	var raw [nonceBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Challenge{}, fmt.Errorf("walletauth: generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(raw[:])

	now := c.now().UTC()
	ch := Challenge{
		WalletAddress: address,
		Nonce:         nonce,
		Message:       Message(address, nonce),
		ExpiresAt:     now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneExpired(now)
	if _, exists := c.pending[address]; !exists && len(c.pending) >= c.maxPending {
		c.evictOldest()
	}
	c.pending[address] = ch
	return ch, nil
}

// Verify checks a signature over the challenge previously issued to address.
// The nonce is consumed regardless of the outcome.
func (c *Challenger) Verify(address, nonce string, signature []byte) error {
	address, err := walletuser.NormalizeAddress(address)
	if err != nil {
		return err
	}
	nonce = strings.TrimSpace(nonce)

	now := c.now().UTC()
	c.mu.Lock()
	ch, ok := c.pending[address]
	if ok {
		delete(c.pending, address)
	}
	c.mu.Unlock()

	if !ok || ch.Nonce != nonce || !now.Before(ch.ExpiresAt) {
		return ErrUnknownChallenge
	}

	pub, err := walletuser.DecodeAddress(address)
	if err != nil {
		return err
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature length %d", ErrBadSignature, len(signature))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(ch.Message), signature) {
		return ErrBadSignature
	}
	return nil
}

func (c *Challenger) pruneExpired(now time.Time) {
	for addr, ch := range c.pending {
		if !now.Before(ch.ExpiresAt) {
			delete(c.pending, addr)
		}
	}
}

func (c *Challenger) evictOldest() {
	var oldestAddr string
	var oldestAt time.Time
	first := true
	for addr, ch := range c.pending {
		if first || ch.ExpiresAt.Before(oldestAt) {
			oldestAddr = addr
			oldestAt = ch.ExpiresAt
			first = false
		}
	}
	if oldestAddr != "" {
		delete(c.pending, oldestAddr)
	}
}
