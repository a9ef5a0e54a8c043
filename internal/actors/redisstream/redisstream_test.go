package redisstream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSender(t *testing.T, optArgs ...StreamSenderOptArgs) (*miniredis.Miniredis, *redis.Client, *StreamSender) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sender, err := NewStreamSender(StreamSenderArgs{Client: client, Stream: "user-events"}, optArgs...)
	require.NoError(t, err)
	return mr, client, sender
}

func TestNewStreamSender(t *testing.T) {
	_, err := NewStreamSender(StreamSenderArgs{Stream: "s"})
	assert.Error(t, err)

	_, err = NewStreamSender(StreamSenderArgs{Client: redis.NewClient(&redis.Options{})})
	assert.Error(t, err)
}

func TestStreamSender_Send(t *testing.T) {
	_, client, sender := newSender(t)
	ctx := context.Background()

	created := model.UserEvent{
		ID: "e1", UserID: 1, Email: "john@example.com", Username: "John",
		Type: model.UserCreated, Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	deleted := created
	deleted.ID = "e2"
	deleted.Type = model.UserDeleted

	require.NoError(t, sender.Send(ctx, created))
	require.NoError(t, sender.Send(ctx, deleted))

	entries, err := client.XRange(ctx, "user-events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for i, expected := range []model.UserEvent{created, deleted} {
		values := entries[i].Values
		assert.Equal(t, string(expected.Type), values[FieldEventType])
		assert.Equal(t, "john@example.com", values[FieldPartitionKey])

		var got model.UserEvent
		require.NoError(t, json.Unmarshal([]byte(values[FieldEvent].(string)), &got))
		assert.Equal(t, expected, got)
	}
}

func TestStreamSender_SendWhenServerIsDown(t *testing.T) {
	mr, _, sender := newSender(t)
	mr.Close()
	assert.Error(t, sender.Send(context.Background(), model.UserEvent{ID: "e1", Type: model.UserCreated}))
}

func TestStreamSender_MaxLen(t *testing.T) {
	_, client, sender := newSender(t, WithMaxLen(1))
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, sender.Send(ctx, model.UserEvent{ID: id, Type: model.UserCreated}))
	}
	n, err := client.XLen(ctx, "user-events").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(3))
	assert.GreaterOrEqual(t, n, int64(1))
}
