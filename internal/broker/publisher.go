package broker

import (
	"context"
	"fmt"
)

// Publisher routes envelopes to the producer of their topic. One topic per
// bounded context: order-events, payment-events, product-events.
type Publisher struct {
	producers map[string]*Producer
}

// NewPublisher creates producers for each topic.
func NewPublisher(brokers []string, topics ...string) *Publisher {
	producers := make(map[string]*Producer, len(topics))
	for _, topic := range topics {
		producers[topic] = NewProducer(brokers, topic)
	}
	return &Publisher{producers: producers}
}

// Publish sends an already-encoded envelope keyed by its aggregate id.
func (p *Publisher) Publish(ctx context.Context, topic, aggregateID string, value []byte) error {
	producer, ok := p.producers[topic]
	if !ok {
		return fmt.Errorf("no producer for topic %s", topic)
	}
	if err := producer.Publish(ctx, aggregateID, value); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close closes every producer.
func (p *Publisher) Close() error {
	var firstErr error
	for _, producer := range p.producers {
		if err := producer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
