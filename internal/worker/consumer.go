package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming job events from the worker's queue
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	consumerTag := fmt.Sprintf("agent-jobs-worker-%s", uuid.NewString())

	deliveries, err := w.rabbitClient.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.String("agent_id", w.agentID),
	)

	return deliveries, nil
}

// consumeWakeups turns job.created events for this agent into poll loop
// wake-ups. Events only hint; the poll remains the source of truth.
func (w *Worker) consumeWakeups(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopChan:
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed, polling only")
				return
			}

			if !w.handleEvent(delivery.Body) {
				// Malformed messages are dropped without requeue
				if err := delivery.Nack(false, false); err != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", err),
					)
				}
				continue
			}

			if err := delivery.Ack(false); err != nil {
				w.logger.Error("Failed to ACK message",
					slog.Any("error", err),
				)
			}
		}
	}
}

// handleEvent reports whether body is a well formed job event and wakes the
// loop when it announces a new job for this agent.
func (w *Worker) handleEvent(body []byte) bool {
	var event domain.JobEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.logger.Error("Failed to parse job event",
			slog.Any("error", err),
			slog.String("body", string(body)),
		)
		return false
	}

	if event.Event == domain.EventJobCreated && event.AgentID == w.agentID {
		w.logger.Debug("New job announced",
			slog.String("job_id", event.JobID),
		)
		w.notify()
	}

	return true
}
