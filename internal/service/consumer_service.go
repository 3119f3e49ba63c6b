package service

import (
	"context"

	"pdfchat-be/internal/metrics"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventSink receives every domain event after it leaves the in-process bus.
// The NATS publisher implements it.
type EventSink interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	sink       EventSink
	logger     logger.ILogger
	metrics    *metrics.Metrics
}

// NewConsumerService builds the bus consumer. sink may be nil when no exporter is configured.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	sink EventSink,
	log logger.ILogger,
	m *metrics.Metrics,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		sink:       sink,
		logger:     log,
		metrics:    m,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.metrics.IncDomainEvent(event.Type)
	cs.logger.Info("ConsumerService", "Domain event", map[string]interface{}{
		"type": event.Type,
		"data": event.Data,
	})

	if cs.sink != nil {
		// Export is best effort; a broken exporter must not stall the bus.
		if err := cs.sink.Publish(ctx, event); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to export event", map[string]interface{}{
				"type":  event.Type,
				"error": err.Error(),
			})
		}
	}

	msg.Ack()
}
