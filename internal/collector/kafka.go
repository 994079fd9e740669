package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	MaxWait time.Duration
}

// KafkaSource consumes log lines from a topic. Ordering holds per partition,
// so the producer is expected to key lines by server.
type KafkaSource struct {
	reader *kafka.Reader
}

func NewKafkaSource(cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka source requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source requires a topic")
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  cfg.MaxWait,
	})
	return &KafkaSource{reader: reader}, nil
}

func (s *KafkaSource) Next(ctx context.Context) ([]byte, error) {
	m, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return m.Value, nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
