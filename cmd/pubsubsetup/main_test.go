package main

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestParseSetup(t *testing.T) {
	project, setups, err := parseSetup("proj, topicA:subA1: subA2,topicB")
	require.NoError(t, err)
	assert.Equal(t, "proj", project)
	assert.Equal(t, []setup{
		{topic: "topicA", subscriptions: []string{"subA1", "subA2"}},
		{topic: "topicB"},
	}, setups)

	_, _, err = parseSetup(",topic")
	assert.Error(t, err)

	_, _, err = parseSetup("proj,:sub")
	assert.Error(t, err)
}

func TestCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "proj", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s := setup{topic: "user-events", subscriptions: []string{"audit"}}
	require.NoError(t, create(ctx, client, s))
	require.NoError(t, create(ctx, client, s))

	cfg, err := client.Subscription("audit").Config(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.EnableMessageOrdering)
	assert.Equal(t, "user-events", cfg.Topic.ID())
}
