package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeAWSClient struct {
	out *secretsmanager.GetSecretValueOutput
	err error
}

func (c *fakeAWSClient) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

func TestEnvProvider(t *testing.T) {
	const key = "SOLDEED_TEST_SECRET_ENV"
	t.Setenv(key, "  super-secret  ")
	p := NewEnv()
	got, err := p.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "super-secret" {
		t.Fatalf("value mismatch: got %q", got)
	}

	if _, err := p.Get(context.Background(), "SOLDEED_MISSING_ENV_KEY"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dsn")
	if err := os.WriteFile(path, []byte("postgres://app@db/soldeed\n"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}

	p := NewFile()
	got, err := p.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "postgres://app@db/soldeed" {
		t.Fatalf("value mismatch: got %q", got)
	}

	if _, err := p.Get(context.Background(), filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAWSProvider(t *testing.T) {
	t.Parallel()

	p, err := NewAWSWithClient(&fakeAWSClient{
		out: &secretsmanager.GetSecretValueOutput{
			SecretString: strPtr(" secret "),
		},
	})
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}
	got, err := p.Get(context.Background(), "arn:aws:secretsmanager:us-east-1:123:secret:soldeed-db")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "secret" {
		t.Fatalf("secret mismatch: got %q", got)
	}
}

func TestResolver(t *testing.T) {
	t.Setenv("SOLDEED_TEST_RESOLVER_ENV", "from-env")

	r := NewResolver(nil)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "env:SOLDEED_TEST_RESOLVER_ENV")
	if err != nil {
		t.Fatalf("Resolve env: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("env value mismatch: got %q", got)
	}

	got, err = r.Resolve(ctx, "literal-value")
	if err != nil {
		t.Fatalf("Resolve literal: %v", err)
	}
	if got != "literal-value" {
		t.Fatalf("literal mismatch: got %q", got)
	}

	if _, err := r.Resolve(ctx, "aws:some-secret"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without aws provider, got %v", err)
	}
}

func strPtr(v string) *string { return &v }
