package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

var _ ports.Sender = (*Publisher)(nil)

// HeaderPartitionKey is the message header carrying the event partition key.
const HeaderPartitionKey = "partition_key"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// PublisherArgs are the mandatory arguments to build a Publisher.
type PublisherArgs struct {
	// Channel is an open amqp channel.
	Channel Channel

	// Exchange is the topic exchange events are published to. It is declared if missing.
	Exchange string
}

// Publisher publishes user events to a topic exchange. The routing key is derived from the
// event type (user.created, user.deleted).
type Publisher struct {
	channel  Channel
	exchange string
	nowFunc  func() time.Time
	logger   log.FieldLogger
}

// PublisherOptArgs are the optional arguments for building a Publisher
type PublisherOptArgs = func(*Publisher)

// WithLogger overrides the logger the channel closure is reported to.
func WithLogger(logger log.FieldLogger) PublisherOptArgs {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher declares the exchange and returns a Publisher bound to it. A channel closed by
// the broker is logged once; every later Send fails.
func NewPublisher(args PublisherArgs, optArgs ...PublisherOptArgs) (*Publisher, error) {
	if args.Channel == nil {
		return nil, errors.New("nil amqp channel")
	}
	if args.Exchange == "" {
		return nil, errors.New("empty exchange name")
	}
	err := args.Channel.ExchangeDeclare(
		args.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("error declaring exchange %q: %w", args.Exchange, err)
	}
	p := &Publisher{channel: args.Channel, exchange: args.Exchange, nowFunc: time.Now, logger: log.StandardLogger()}
	for _, opt := range optArgs {
		opt(p)
	}
	go p.watchClose(args.Channel.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

// watchClose logs the broker error that closed the channel. A graceful Close closes
// the notification channel without an error.
func (p *Publisher) watchClose(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok || amqpErr == nil {
		return
	}
	p.logger.WithError(amqpErr).WithFields(log.Fields{
		"exchange": p.exchange,
		"code":     amqpErr.Code,
	}).Error("rabbitmq channel closed by the broker, user events will not be published")
}

// Send publishes the event as a persistent json message.
func (p *Publisher) Send(ctx context.Context, event model.UserEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling user-event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Type:         string(event.Type),
			Headers:      amqp.Table{HeaderPartitionKey: event.PartitionKey()},
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.nowFunc(),
		},
	)
	if err != nil {
		return fmt.Errorf("error publishing to exchange %q: %w", p.exchange, err)
	}
	return nil
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}

// RoutingKey maps USER_CREATED to user.created.
func RoutingKey(eventType model.EventType) string {
	return strings.ToLower(strings.Replace(string(eventType), "_", ".", 1))
}

// Dial connects to the broker, retrying until attempts are exhausted or ctx is done.
func Dial(ctx context.Context, url string, attempts int, backoff time.Duration) (*amqp.Connection, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", i+1).Warn("failed to connect to rabbitmq, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("could not connect to rabbitmq after %d attempts: %w", attempts, lastErr)
}
