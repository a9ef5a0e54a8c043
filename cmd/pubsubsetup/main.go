package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

const usage = "PROJECTID,TOPIC1:SUBSCRIPTION11:SUBSCRIPTION12,TOPIC2:SUBSCRIPTION21"

// setup describes a topic and the subscriptions to create on it.
type setup struct {
	topic         string
	subscriptions []string
}

// parseSetup parses the command line argument, following usage.
func parseSetup(arg string) (string, []setup, error) {
	items := strings.Split(arg, ",")
	projectID := strings.TrimSpace(items[0])
	if projectID == "" {
		return "", nil, fmt.Errorf("missing project id, expected %s", usage)
	}
	var setups []setup
	for _, item := range items[1:] {
		parts := strings.Split(item, ":")
		s := setup{topic: strings.TrimSpace(parts[0])}
		if s.topic == "" {
			return "", nil, fmt.Errorf("empty topic in %q, expected %s", item, usage)
		}
		for _, sub := range parts[1:] {
			if sub = strings.TrimSpace(sub); sub != "" {
				s.subscriptions = append(s.subscriptions, sub)
			}
		}
		setups = append(setups, s)
	}
	return projectID, setups, nil
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("please provide the setup as a command-line argument, following the pattern: %s", usage)
	}
	projectID, setups, err := parseSetup(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("invalid setup")
	}

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Fatal("unable to create client")
	}
	defer client.Close()

	for _, s := range setups {
		if err := create(ctx, client, s); err != nil {
			log.WithError(err).WithField("project", projectID).Fatal("setup failed")
		}
	}
}

// create creates the topic and its subscriptions. Existing ones are left untouched. Subscriptions
// have message ordering enabled so user events are received in partition key order.
func create(ctx context.Context, client *pubsub.Client, s setup) error {
	topic, err := client.CreateTopic(ctx, s.topic)
	if status.Code(err) == codes.AlreadyExists {
		topic = client.Topic(s.topic)
	} else if err != nil {
		return fmt.Errorf("unable to create topic %s: %w", s.topic, err)
	}

	for _, subscriptionID := range s.subscriptions {
		_, err := client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
			Topic:                 topic,
			EnableMessageOrdering: true,
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("unable to create subscription %s on topic %s: %w", subscriptionID, s.topic, err)
		}
		log.WithField("topic", s.topic).WithField("subscription", subscriptionID).Info("subscription ready")
	}
	return nil
}
