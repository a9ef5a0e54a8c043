package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
)

var _ ports.Sender = (*Producer)(nil)

const (
	// AttributeEventType carries the event type so subscribers can filter without decoding.
	AttributeEventType = "eventType"
	// AttributePartitionKey carries the partition key the message was ordered by.
	AttributePartitionKey = "partitionKey"
)

// NewProducer creates a new producer. Message ordering is enabled on the topic so that events
// sharing a partition key are delivered in publish order.
func NewProducer(topic *pubsub.Topic) (*Producer, error) {
	if topic == nil {
		return nil, errors.New("topic is nil")
	}
	topic.EnableMessageOrdering = true
	return &Producer{topic: topic}, nil
}

// Producer is the pubsub producer of user events.
type Producer struct {
	topic *pubsub.Topic
}

// Send publishes the event and blocks until the server acknowledges it.
func (p *Producer) Send(ctx context.Context, event model.UserEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling user-event: %w", err)
	}
	key := event.PartitionKey()
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: key,
		Attributes: map[string]string{
			AttributeEventType:    string(event.Type),
			AttributePartitionKey: key,
		},
	})
	// Block until the result is returned and a server-generated
	// ID is returned for the published message.
	if _, err := result.Get(ctx); err != nil {
		// a failed publish pauses the ordering key until resumed
		p.topic.ResumePublish(key)
		return fmt.Errorf("pubsub: result.Get: %w", err)
	}
	return nil
}
