// Package kafka publishes the chat outbox to Kafka. The producer is
// synchronous and idempotent so a claimed outbox event is either durably
// acknowledged by the broker or retried by the worker, never both.
package kafka

import (
	"context"
	"fmt"
	"sort"

	"github.com/IBM/sarama"
)

// Producer wraps a sarama sync producer configured for exactly-once-ish
// delivery: all in-sync replicas must ack, idempotence on, one request in
// flight.
type Producer struct {
	sync sarama.SyncProducer
}

func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: connect: %w", err)
	}
	return &Producer{sync: sync}, nil
}

// Publish sends one event. The key is the conversation id so all events of a
// thread land on the same partition, in order.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hs := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
