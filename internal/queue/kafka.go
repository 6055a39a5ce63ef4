package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/speedx/push-server/internal/config"
)

// BroadcastMessage is one queued broadcast job. The worker resolves it to
// every active device token at consume time, not enqueue time.
type BroadcastMessage struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Producer handles publishing broadcast jobs to Kafka
type Producer struct {
	writer *kafka.Writer
}

// Consumer handles consuming broadcast jobs from Kafka
type Consumer struct {
	reader *kafka.Reader
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg config.KafkaConfig) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Async:        false, // Synchronous for reliability
	}

	return &Producer{writer: writer}
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg config.KafkaConfig, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     groupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{reader: reader}
}

// PublishBroadcast publishes a broadcast job to Kafka
func (p *Producer) PublishBroadcast(ctx context.Context, msg BroadcastMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast message: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(msg.ID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
		Time: time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	return nil
}

// ConsumeBroadcasts consumes broadcast jobs from Kafka and hands each one
// to the handler. A handler error is logged and the job is skipped; the
// audit log and outcome counters already reflect whatever partially
// happened.
func (c *Consumer) ConsumeBroadcasts(ctx context.Context, handler func(BroadcastMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("Error reading message from Kafka: %v", err)
				continue
			}

			var broadcast BroadcastMessage
			if err := json.Unmarshal(msg.Value, &broadcast); err != nil {
				log.Printf("Error unmarshaling broadcast message: %v", err)
				continue
			}

			if err := handler(broadcast); err != nil {
				log.Printf("Error processing broadcast %s: %v", broadcast.ID, err)
				continue
			}
		}
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
