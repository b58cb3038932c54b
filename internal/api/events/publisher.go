package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
)

// Broker is the subset of the RabbitMQ client used to publish events.
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Publisher sends job lifecycle events to the jobs exchange. The event name
// is the routing key, so consumers bind to e.g. "job.created".
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

func (p *Publisher) PublishJobEvent(ctx context.Context, event domain.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, event.Event, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Event, err)
	}

	return nil
}
