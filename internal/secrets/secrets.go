// Package secrets resolves configuration secrets referenced by flags, such
// as the Postgres DSN or the Redis password. A reference selects its source
// with a scheme prefix: env:NAME, file:/path, or aws:secret-id. A value
// without a prefix is returned as-is.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

// Provider fetches a single secret value by key.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// Resolver dispatches a reference to the provider its prefix names.
type Resolver struct {
	env  Provider
	file Provider
	aws  Provider
}

// NewResolver wires the env and file providers. The AWS provider is optional
// and only required when aws: references are used.
func NewResolver(aws Provider) *Resolver {
	return &Resolver{
		env:  NewEnv(),
		file: NewFile(),
		aws:  aws,
	}
}

// Resolve maps env:/file:/aws: references to their providers. Anything else
// is treated as a literal value.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "env:"):
		return r.env.Get(ctx, strings.TrimPrefix(ref, "env:"))
	case strings.HasPrefix(ref, "file:"):
		return r.file.Get(ctx, strings.TrimPrefix(ref, "file:"))
	case strings.HasPrefix(ref, "aws:"):
		if r.aws == nil {
			return "", fmt.Errorf("%w: aws reference %q without aws provider", ErrInvalidConfig, ref)
		}
		return r.aws.Get(ctx, strings.TrimPrefix(ref, "aws:"))
	default:
		return ref, nil
	}
}

type EnvProvider struct{}

func NewEnv() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty env key", ErrInvalidConfig)
	}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, key)
	}
	return v, nil
}

// FileProvider reads a secret from a file, typically a mounted volume.
type FileProvider struct{}

func NewFile() *FileProvider {
	return &FileProvider{}
}

func (p *FileProvider) Get(_ context.Context, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty secret file path", ErrInvalidConfig)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: secret file %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("secrets: read file %s: %w", path, err)
	}
	v := strings.TrimSpace(string(raw))
	if v == "" {
		return "", fmt.Errorf("%w: secret file %s is empty", ErrNotFound, path)
	}
	return v, nil
}

type awsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSProvider struct {
	client awsClient
}

func NewAWS(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client awsClient) (*AWSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWSProvider{client: client}, nil
}

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("%w: nil aws provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty secret key", ErrInvalidConfig)
	}
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", key, err)
	}
	if out.SecretString != nil && strings.TrimSpace(*out.SecretString) != "" {
		return strings.TrimSpace(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, key)
}
