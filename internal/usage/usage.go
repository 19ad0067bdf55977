// Package usage exports tool-usage records to downstream consumers.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/and161185/codepilot/internal/model"
)

// Exporter publishes an activity record after it has been stored.
type Exporter interface {
	Export(ctx context.Context, a model.Activity) error
}

// Nop discards records.
type Nop struct{}

// Export implements Exporter.
func (Nop) Export(context.Context, model.Activity) error { return nil }

// Record is the wire form of an exported activity.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ToolName    string    `json:"tool_name"`
	CreditsUsed int       `json:"credits_used"`
	CreatedAt   time.Time `json:"created_at"`
}

// Kafka publishes JSON records keyed by user ID.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka wraps an existing producer.
func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// NewProducer dials brokers and returns a SyncProducer configured for acked sends.
func NewProducer(brokers []string, retryMax int, retryBackoff time.Duration) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = retryMax
	config.Producer.Retry.Backoff = retryBackoff
	return sarama.NewSyncProducer(brokers, config)
}

// Export implements Exporter.
func (k *Kafka) Export(ctx context.Context, a model.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(Record{
		ID:          a.ID.String(),
		UserID:      a.UserID.String(),
		ToolName:    a.ToolName,
		CreditsUsed: a.CreditsUsed,
		CreatedAt:   a.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(a.UserID.String()),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send usage: %w", err)
	}
	return nil
}

// Close releases the producer.
func (k *Kafka) Close() error { return k.producer.Close() }
