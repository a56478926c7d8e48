// Package amrelay requests synchronization of a changed user aggregate to the
// central system of record. Delivery is asynchronous; the relay only
// guarantees the request was accepted by the broker.
package amrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"idproof/pkg/platform/sentinel"
)

// SyncRelay asks the attribute manager to pull the updated aggregate.
type SyncRelay interface {
	RequestSync(ctx context.Context, eppn string) error
}

// SyncRequest is the message produced on the sync topic.
type SyncRequest struct {
	Eppn        string    `json:"eppn"`
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requested_at"`
}

// Kafka publishes sync requests with franz-go. ProduceSync gives the
// acknowledged-or-failed semantics the committer needs to report SyncFailed
// honestly.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka builds a relay on an existing franz-go client.
func NewKafka(client *kgo.Client, topic string, logger *slog.Logger) *Kafka {
	return &Kafka{client: client, topic: topic, logger: logger}
}

// NewKafkaClient dials the brokers. Callers own Close.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return client, nil
}

func (r *Kafka) RequestSync(ctx context.Context, eppn string) error {
	value, err := json.Marshal(SyncRequest{
		Eppn:        eppn,
		Source:      "idproof",
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal sync request: %w", err)
	}

	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(eppn),
		Value: value,
	}
	if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		r.logger.ErrorContext(ctx, "sync request produce failed", "eppn", eppn, "error", err)
		return fmt.Errorf("produce sync request: %v: %w", err, sentinel.ErrUnavailable)
	}
	r.logger.InfoContext(ctx, "sync requested", "eppn", eppn, "topic", r.topic)
	return nil
}

// Disabled is used when no brokers are configured. Every request fails so the
// committer reports SyncFailed instead of silently dropping the sync.
type Disabled struct{}

func (Disabled) RequestSync(context.Context, string) error {
	return fmt.Errorf("sync relay not configured: %w", sentinel.ErrUnavailable)
}
