package events

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Topics carry versioned payloads; a schema change bumps the topic suffix.
const (
	TopicJobCreated       = "jobs.created.v1"
	TopicJobDeleted       = "jobs.deleted.v1"
	TopicWalletRegistered = "wallets.registered.v1"
)

// JobCreatedV1 is emitted after a job row is committed.
type JobCreatedV1 struct {
	EventID       string    `json:"event_id"`
	JobID         string    `json:"job_id"`
	Position      string    `json:"position"`
	CompanyName   string    `json:"company_name"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// JobDeletedV1 is emitted after an owner deletes a job.
type JobDeletedV1 struct {
	EventID   string    `json:"event_id"`
	JobID     string    `json:"job_id"`
	UserID    string    `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// WalletRegisteredV1 is emitted the first time a wallet address is seen.
type WalletRegisteredV1 struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// JobCreatedEventID derives a stable ID so replays deduplicate downstream.
func JobCreatedEventID(jobID string, createdAt time.Time) string {
	return eventID("soldeed:job-created:v1", jobID, createdAt)
}

func JobDeletedEventID(jobID string, deletedAt time.Time) string {
	return eventID("soldeed:job-deleted:v1", jobID, deletedAt)
}

func WalletRegisteredEventID(walletAddress string, registeredAt time.Time) string {
	return eventID("soldeed:wallet-registered:v1", strings.ToLower(walletAddress), registeredAt)
}

func eventID(prefix, subject string, at time.Time) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	h.Write([]byte{0})

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UTC().UnixMilli()))
	h.Write(ts[:])

	return hex.EncodeToString(h.Sum(nil))
}

// Publisher wraps a Producer with typed publish helpers. A nil Publisher is
// valid and drops every event, so callers can run without a queue configured.
type Publisher struct {
	producer Producer
}

func NewPublisher(producer Producer) *Publisher {
	if producer == nil {
		return nil
	}
	return &Publisher{producer: producer}
}

func (p *Publisher) JobCreated(ctx context.Context, ev JobCreatedV1) error {
	if p == nil {
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = JobCreatedEventID(ev.JobID, ev.CreatedAt)
	}
	return p.publish(ctx, TopicJobCreated, ev.EventID, ev)
}

func (p *Publisher) JobDeleted(ctx context.Context, ev JobDeletedV1) error {
	if p == nil {
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = JobDeletedEventID(ev.JobID, ev.DeletedAt)
	}
	return p.publish(ctx, TopicJobDeleted, ev.EventID, ev)
}

func (p *Publisher) WalletRegistered(ctx context.Context, ev WalletRegisteredV1) error {
	if p == nil {
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = WalletRegisteredEventID(ev.WalletAddress, ev.RegisteredAt)
	}
	return p.publish(ctx, TopicWalletRegistered, ev.EventID, ev)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", topic, err)
	}
	if err := p.producer.Publish(ctx, topic, []byte(key), raw); err != nil {
		return fmt.Errorf("events: publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
