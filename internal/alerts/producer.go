package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/pkg/config"
	"github.com/wqlab/screener/pkg/logger"
)

// Producer publishes order intents and exit signals to Kafka for the
// downstream notification and reporting consumers. It satisfies
// engine.Publisher; when Kafka is disabled in config the engine simply
// runs without one.
type Producer struct {
	producer    sarama.SyncProducer
	orderTopic  string
	signalTopic string
	logger      *logger.Logger
}

// NewProducer connects a synchronous producer to the configured brokers.
func NewProducer(cfg *config.Config, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return newWithProducer(producer, cfg, log), nil
}

// newWithProducer wires an already-built producer; tests inject mocks
// here.
func newWithProducer(producer sarama.SyncProducer, cfg *config.Config, log *logger.Logger) *Producer {
	return &Producer{
		producer:    producer,
		orderTopic:  cfg.Kafka.OrderTopic,
		signalTopic: cfg.Kafka.SignalTopic,
		logger:      log.WithField("component", "alerts"),
	}
}

// PublishOrders sends each order intent as one message keyed by stock
// code, so per-stock ordering is preserved across partitions.
func (p *Producer) PublishOrders(ctx context.Context, orders []contracts.OrderIntent) error {
	for i := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.send(p.orderTopic, orders[i].Code, &orders[i]); err != nil {
			return fmt.Errorf("publish order for %s: %w", orders[i].Code, err)
		}
	}

	p.logger.WithField("count", len(orders)).Debug("Published order intents")
	return nil
}

// PublishExits sends each exit signal keyed by stock code.
func (p *Producer) PublishExits(ctx context.Context, exits []contracts.ExitSignal) error {
	for i := range exits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.send(p.signalTopic, exits[i].Code, &exits[i]); err != nil {
			return fmt.Errorf("publish exit for %s: %w", exits[i].Code, err)
		}
	}

	p.logger.WithField("count", len(exits)).Debug("Published exit signals")
	return nil
}

// Close flushes and releases the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}

func (p *Producer) send(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(map[string]interface{}{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("Message sent")
	return nil
}
