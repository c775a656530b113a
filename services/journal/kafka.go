package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"sp500-backtest/services/config"
)

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaExporter publishes one JSON message per trade, keyed by run id so a
// run stays on one partition
type KafkaExporter struct {
	writer MessageWriter
}

func NewKafkaExporter(cfg config.KafkaConfig) (*KafkaExporter, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka journal needs brokers and a topic")
	}
	return &KafkaExporter{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
	}}, nil
}

func (e *KafkaExporter) Name() string { return "kafka" }

func (e *KafkaExporter) Export(ctx context.Context, rec Record) error {
	entries := rec.Entries()
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for _, en := range entries {
		data, err := json.Marshal(en)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.RunID),
			Value: data,
			Time:  rec.CreatedAt,
		})
	}
	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to send kafka messages: %w", err)
	}
	return nil
}

func (e *KafkaExporter) Close() error { return e.writer.Close() }
