package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka publishes each channel as a topic of the same name.
type Kafka struct {
	brokers []string
	writer  *kafka.Writer
	logger  *zap.Logger
}

// NewKafka builds a writer for brokers. Topics are created on first use.
func NewKafka(brokers []string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		logger: logger,
	}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, channel string, payload []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: channel,
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Subscriber. groupID should be unique per device so
// every device sees every broadcast.
func (k *Kafka) Subscribe(ctx context.Context, channel string, handle Handler) error {
	return k.SubscribeGroup(ctx, channel, "", handle)
}

// SubscribeGroup consumes channel as consumer group groupID. An empty group
// reads the partition directly from the latest offset.
func (k *Kafka) SubscribeGroup(ctx context.Context, channel, groupID string, handle Handler) error {
	cfg := kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    channel,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	}
	if groupID == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	reader := kafka.NewReader(cfg)
	defer reader.Close()

	k.logger.Info("kafka subscription opened", zap.String("topic", channel), zap.String("group", groupID))
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			k.logger.Warn("kafka read failed", zap.String("topic", channel), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		handle(msg.Value)
	}
}

// Close flushes pending writes.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
