package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

var _ ports.Sender = (*StreamSender)(nil)

// Stream entry fields.
const (
	FieldEvent        = "event"
	FieldEventType    = "eventType"
	FieldPartitionKey = "partitionKey"
)

// StreamSenderArgs are the mandatory arguments to build a StreamSender.
type StreamSenderArgs struct {
	// Client is a redis client.
	Client redis.UniversalClient

	// Stream is the name of the stream events are appended to.
	Stream string
}

// StreamSenderOptArgs are the optional arguments for building a StreamSender
type StreamSenderOptArgs = func(*StreamSender)

// WithMaxLen caps the stream length (approximate trimming). Zero means unbounded.
func WithMaxLen(maxLen int64) StreamSenderOptArgs {
	return func(s *StreamSender) {
		s.maxLen = maxLen
	}
}

// StreamSender appends user events to a redis stream. A single stream keeps global order,
// which is stricter than per partition key ordering.
type StreamSender struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewStreamSender creates a new StreamSender.
func NewStreamSender(args StreamSenderArgs, optArgs ...StreamSenderOptArgs) (*StreamSender, error) {
	if args.Client == nil {
		return nil, errors.New("nil redis client")
	}
	if args.Stream == "" {
		return nil, errors.New("empty stream name")
	}
	s := &StreamSender{client: args.Client, stream: args.Stream}
	for _, opt := range optArgs {
		opt(s)
	}
	return s, nil
}

// Send appends the event to the stream.
func (s *StreamSender) Send(ctx context.Context, event model.UserEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling user-event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			FieldEvent:        data,
			FieldEventType:    string(event.Type),
			FieldPartitionKey: event.PartitionKey(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("error appending to stream %q: %w", s.stream, err)
	}
	return nil
}
