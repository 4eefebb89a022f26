// Package logostore persists uploaded company logos in the public job-logos
// bucket and hands back the public URL stored on the posting.
package logostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"

	DefaultBucket = "job-logos"
	DefaultPrefix = "public"

	contentTypeJPEG = "image/jpeg"

	// MaxUploadSize bounds a single logo upload.
	MaxUploadSize int64 = 2 << 20
)

var (
	ErrInvalidConfig = errors.New("logostore: invalid config")
	ErrInvalidKey    = errors.New("logostore: invalid key")
	ErrInvalidImage  = errors.New("logostore: invalid image")
	ErrNotFound      = errors.New("logostore: not found")
)

var jpegMagic = []byte{0xff, 0xd8, 0xff}

// Store persists logo objects; Put returns the public URL for the stored
// object.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectKey names a fresh upload: millisecond timestamp plus a UUID, always
// with the .jpg extension.
func ObjectKey(now time.Time) string {
	return fmt.Sprintf("%d-%s.jpg", now.UnixMilli(), uuid.NewString())
}

// ValidateJPEG rejects anything but a real JPEG upload: the filename must end
// in .jpg, the payload must start with the JPEG magic bytes and fit the size
// bound.
func ValidateJPEG(filename string, data []byte) error {
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".jpg") {
		return fmt.Errorf("%w: only .jpg files are allowed", ErrInvalidImage)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	if int64(len(data)) > MaxUploadSize {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidImage, MaxUploadSize)
	}
	if !bytes.HasPrefix(data, jpegMagic) {
		return fmt.Errorf("%w: not a JPEG payload", ErrInvalidImage)
	}
	return nil
}

type Config struct {
	Driver string
	Bucket string
	Prefix string

	// PublicBaseURL is the public-read root of the bucket. Defaults to the
	// bucket's virtual-hosted S3 URL.
	PublicBaseURL string

	// S3 driver only.
	S3Client S3Client
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func New(cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		cfg.Bucket = DefaultBucket
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.Prefix = strings.Trim(strings.TrimSpace(cfg.Prefix), "/")

	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case DriverMemory:
		return newMemoryStore(cfg), nil
	case DriverS3, "":
		return newS3Store(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func normalizeKey(key string) (string, error) {
	if key != strings.TrimSpace(key) {
		return "", fmt.Errorf("%w: key has surrounding whitespace", ErrInvalidKey)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: key contains control characters", ErrInvalidKey)
		}
	}
	return key, nil
}

func publicBaseURL(cfg Config) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}
	return base
}

type memoryStore struct {
	mu      sync.RWMutex
	prefix  string
	baseURL string
	objects map[string][]byte
}

func newMemoryStore(cfg Config) *memoryStore {
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" {
		base = "memory://" + cfg.Bucket
	}
	return &memoryStore{
		prefix:  cfg.Prefix,
		baseURL: base,
		objects: make(map[string][]byte),
	}
}

func (m *memoryStore) Put(_ context.Context, key string, data []byte) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	full := m.prefix + "/" + key

	m.mu.Lock()
	m.objects[full] = append([]byte(nil), data...)
	m.mu.Unlock()
	return m.baseURL + "/" + full, nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[m.prefix+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, m.prefix+"/"+key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.objects[m.prefix+"/"+key]
	m.mu.RUnlock()
	return ok, nil
}

type s3Store struct {
	client  S3Client
	bucket  string
	prefix  string
	baseURL string
}

func newS3Store(cfg Config) (*s3Store, error) {
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
	}
	return &s3Store{
		client:  cfg.S3Client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		baseURL: publicBaseURL(cfg),
	}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	full := s.prefix + "/" + key

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeJPEG),
	})
	if err != nil {
		return "", fmt.Errorf("logostore/s3: put %q: %w", key, err)
	}
	return s.baseURL + "/" + full, nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + "/" + key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("logostore/s3: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	limited := io.LimitReader(out.Body, MaxUploadSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("logostore/s3: read %q: %w", key, err)
	}
	if int64(len(data)) > MaxUploadSize {
		return nil, fmt.Errorf("%w: object %q exceeds %d bytes", ErrInvalidImage, key, MaxUploadSize)
	}
	return data, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + "/" + key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("logostore/s3: delete %q: %w", key, err)
	}
	return nil
}

func (s *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + "/" + key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("logostore/s3: head %q: %w", key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "404":
		return true
	default:
		return false
	}
}
