package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcactor "github.com/rbroggi/userlifecycle/internal/actors/grpc"
	subscriberactor "github.com/rbroggi/userlifecycle/internal/actors/pubsub/subscriber"
	"github.com/rbroggi/userlifecycle/internal/config"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	"github.com/rbroggi/userlifecycle/internal/core/usecase"
	log "github.com/sirupsen/logrus"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	// Only log the DebugLevel severity or above. Overridden by LOG_LEVEL once the config is read.
	log.SetLevel(log.DebugLevel)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return err
	}
	defer client.Close()

	subscription := client.Subscription(cfg.PubSub.UserEventSubscriptionID)
	subscriber, err := subscriberactor.NewSubscriber(subscriberactor.SubscriberArgs{
		UserEventHandler: usecase.NewAuditor(nil),
		Subscription:     subscription,
	})
	if err != nil {
		return err
	}

	healthSvc, err := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{
		Pinger: ports.PingerFunc(func(ctx context.Context) error {
			exists, err := subscription.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return errors.New("subscription does not exist")
			}
			return nil
		}),
		Interval: cfg.Health.ProbeInterval,
	})
	if err != nil {
		return err
	}

	mux := runtime.NewServeMux()
	if err := mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		if !healthSvc.Serving() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}); err != nil {
		return err
	}
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	healthSvc.Register(grpcServer)

	// Register reflection service on gRPC server.
	reflection.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return subscriber.Consume(gctx)
	})
	g.Go(func() error {
		healthSvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	log.
		WithField("http-server-addr", cfg.HTTP.Addr).
		WithField("grpc-server-addr", cfg.GRPC.Addr).
		WithField("subscription", cfg.PubSub.UserEventSubscriptionID).
		Info("worker up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("worker stopped with error")
	}
}
