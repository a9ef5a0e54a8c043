package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"

	log "github.com/sirupsen/logrus"
)

// SubscriberArgs contain the mandatory arguments to build a subscriber.
type SubscriberArgs struct {
	// Subscription is a pubsub subscription
	Subscription *pubsub.Subscription

	// UserEventHandler is a event handler
	UserEventHandler ports.UserEventHandler
}

// Subscriber is a pubsub async subscriber
type Subscriber struct {
	subscription     *pubsub.Subscription
	userEventHandler ports.UserEventHandler
}

// NewSubscriber creates a subscriber
func NewSubscriber(args SubscriberArgs) (*Subscriber, error) {
	if args.Subscription == nil || args.UserEventHandler == nil {
		return nil, errors.New("subscription and handler are mandatory")
	}
	return &Subscriber{
		subscription:     args.Subscription,
		userEventHandler: args.UserEventHandler,
	}, nil
}

// Consume starts the subscriber. This is a blocking method and should be started in it's own go-routine.
// The way to terminate the method is to cancel the context in input.
//
// Messages that cannot be decoded are acked since redelivery would never succeed. Handler failures
// are nacked.
func (s *Subscriber) Consume(ctx context.Context) error {
	if err := s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := log.WithField("message_id", msg.ID)
		userEvent, err := decodeMsgIntoUserEvent(msg)
		if err != nil {
			logger.WithError(err).Error("error decoding message into user-event, dropping it")
			msg.Ack()
			return
		}

		if err := s.userEventHandler.Handle(ctx, *userEvent); err != nil {
			logger.WithError(err).Error("error in user event handler")
			msg.Nack()
			return
		}
		msg.Ack()
	}); err != nil {
		return fmt.Errorf("error receiving messages from subscription: %w", err)
	}
	return nil
}

func decodeMsgIntoUserEvent(msg *pubsub.Message) (*model.UserEvent, error) {
	if msg == nil {
		return nil, errors.New("cannot decode nil pubsub msg")
	}
	userEvent := new(model.UserEvent)
	if err := json.Unmarshal(msg.Data, userEvent); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	if userEvent.ID == "" {
		return nil, errors.New("user-event without id")
	}
	return userEvent, nil
}
