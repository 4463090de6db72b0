package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// Config holds the producer settings.
type Config struct {
	Brokers        []string
	DecisionTopic  string
	LifecycleTopic string
	ClientID       string
	Timeout        time.Duration
}

func (c Config) validate() error {
	var errs []string
	if c.DecisionTopic == "" {
		errs = append(errs, "decision topic must be set")
	}
	if c.LifecycleTopic == "" {
		errs = append(errs, "lifecycle topic must be set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return nil
}

// NewSaramaConfig returns the producer configuration used by NewPublisher.
func NewSaramaConfig(cfg Config) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	if config.ClientID == "" {
		config.ClientID = eventSource
	}
	config.Version = sarama.V2_8_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	if cfg.Timeout > 0 {
		config.Producer.Timeout = cfg.Timeout
	}
	return config
}

// Publisher implements ports.EventPublisher with a synchronous Kafka producer.
// Messages are keyed by symbol so each symbol's events stay ordered.
type Publisher struct {
	producer sarama.SyncProducer
	cfg      Config
	logger   ports.Logger
}

// NewPublisher connects a producer to the configured brokers.
func NewPublisher(cfg Config, logger ports.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: at least one Kafka broker is required", ports.ErrConfigurationError)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: creating Kafka producer: %w", ports.ErrConnectionFailed, err)
	}
	return NewPublisherWithProducer(producer, cfg, logger)
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, cfg Config, logger ports.Logger) (*Publisher, error) {
	if producer == nil {
		return nil, errors.New("producer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Publisher{producer: producer, cfg: cfg, logger: logger}, nil
}

// PublishDecision sends a trade order or hold to the decision topic.
func (p *Publisher) PublishDecision(ctx context.Context, d domain.Decision) error {
	return p.send(ctx, p.cfg.DecisionTopic, d.DecisionSymbol(), newDecisionEvent(d))
}

// PublishTransition sends a lifecycle state change to the lifecycle topic.
func (p *Publisher) PublishTransition(ctx context.Context, rec domain.LifecycleRecord, c domain.StateChange) error {
	return p.send(ctx, p.cfg.LifecycleTopic, rec.Symbol, newTransitionEvent(rec, c))
}

func (p *Publisher) send(ctx context.Context, topic, key string, event interface{}) error {
	op := "Publish"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encoding event for %s: %w", ports.ErrPublishFailed, topic, err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("%w: topic %s: %w", ports.ErrPublishFailed, topic, err)
	}
	p.logger.Debug(ctx, op+": Event delivered", map[string]interface{}{
		"topic": topic, "key": key, "partition": partition, "offset": offset,
	})
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
