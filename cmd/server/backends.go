package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-pg/pg/v10"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rbroggi/userlifecycle/internal/actors/logsender"
	"github.com/rbroggi/userlifecycle/internal/actors/memory"
	mongoactor "github.com/rbroggi/userlifecycle/internal/actors/mongo"
	postgresactor "github.com/rbroggi/userlifecycle/internal/actors/postgres"
	produceractor "github.com/rbroggi/userlifecycle/internal/actors/pubsub/producer"
	"github.com/rbroggi/userlifecycle/internal/actors/rabbitmq"
	"github.com/rbroggi/userlifecycle/internal/actors/redisstream"
	"github.com/rbroggi/userlifecycle/internal/config"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// countersCollection holds the mongo id sequences.
const countersCollection = "counters"

type store interface {
	ports.Repository
	ports.Pinger
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		opts, err := pg.ParseURL(cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid POSTGRESQL_URL: %w", err)
		}
		db := pg.Connect(opts)
		if err := db.Ping(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db does not appear to be reachable: %w", err)
		}
		pgActor, err := postgresactor.NewPostgresDB(postgresactor.PostgresDBArgs{DB: db})
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pgActor, func() { _ = db.Close() }, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URL))
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to mongo: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("db does not appear to be reachable: %w", err)
		}
		database := client.Database(cfg.Mongo.Database)
		mongoActor, err := mongoactor.NewMongoDB(mongoactor.MongoDBArgs{
			UserCollection:    database.Collection(cfg.Mongo.Collection),
			CounterCollection: database.Collection(countersCollection),
		})
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		if err := mongoActor.EnsureSchema(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		return mongoActor, disconnect, nil

	case config.StoreMemory:
		log.Warn("using the in-memory store, users are lost on restart")
		return memory.NewMemoryDB(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func openSender(ctx context.Context, cfg *config.Config) (ports.Sender, func(), error) {
	switch cfg.Events.Backend {
	case config.EventsPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating pubsub client: %w", err)
		}
		topic := client.Topic(cfg.PubSub.UserEventTopic)
		producer, err := produceractor.NewProducer(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return producer, func() {
			topic.Stop()
			_ = client.Close()
		}, nil

	case config.EventsRabbitMQ:
		conn, err := rabbitmq.Dial(ctx, cfg.RabbitMQ.URL, 30, 2*time.Second)
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("error opening amqp channel: %w", err)
		}
		publisher, err := rabbitmq.NewPublisher(rabbitmq.PublisherArgs{Channel: ch, Exchange: cfg.RabbitMQ.Exchange})
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return publisher, func() {
			_ = publisher.Close()
			_ = conn.Close()
		}, nil

	case config.EventsRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis does not appear to be reachable: %w", err)
		}
		sender, err := redisstream.NewStreamSender(
			redisstream.StreamSenderArgs{Client: client, Stream: cfg.Redis.Stream},
			redisstream.WithMaxLen(cfg.Redis.MaxLen),
		)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return sender, func() { _ = client.Close() }, nil

	case config.EventsLog:
		return logsender.NewLogSender(nil), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
}
