package walletuser

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func testAddress(fill byte) string {
	raw := bytes.Repeat([]byte{fill}, 32)
	return base58.Encode(raw)
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	addr := testAddress(7)
	got, err := NormalizeAddress("  " + addr + "  ")
	if err != nil {
		t.Fatalf("NormalizeAddress: %v", err)
	}
	if got != addr {
		t.Fatalf("normalized: got %q, want %q", got, addr)
	}
}

func TestNormalizeAddressRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"   ",
		"not-base58-0OIl",
		base58.Encode([]byte{1, 2, 3}), // wrong length
	}
	for _, addr := range cases {
		if _, err := NormalizeAddress(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("NormalizeAddress(%q): got %v, want ErrInvalidAddress", addr, err)
		}
	}
}

func TestDecodeAddressRoundtrip(t *testing.T) {
	t.Parallel()

	raw := bytes.Repeat([]byte{42}, 32)
	got, err := DecodeAddress(base58.Encode(raw))
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("decoded bytes mismatch")
	}
}

func TestMemoryStoreRegisterIsUpsert(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(9)

	first, created, err := s.Register(ctx, addr)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !created {
		t.Fatalf("first registration not reported as created")
	}
	if first.WalletAddress != addr || first.ID == "" {
		t.Fatalf("registered user: %+v", first)
	}

	second, created, err := s.Register(ctx, addr)
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if created {
		t.Fatalf("second registration reported as created")
	}
	if second.ID != first.ID {
		t.Fatalf("registration diverged: %s vs %s", second.ID, first.ID)
	}
}

func TestMemoryStoreLookups(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(3)

	u, _, err := s.Register(ctx, addr)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	byID, err := s.Get(ctx, u.ID)
	if err != nil || byID.WalletAddress != addr {
		t.Fatalf("Get: %v %+v", err, byID)
	}
	byAddr, err := s.GetByAddress(ctx, addr)
	if err != nil || byAddr.ID != u.ID {
		t.Fatalf("GetByAddress: %v %+v", err, byAddr)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: got %v", err)
	}
	if _, err := s.GetByAddress(ctx, testAddress(4)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByAddress missing: got %v", err)
	}
}
