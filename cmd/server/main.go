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

	"github.com/go-chi/httprate"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rbroggi/userlifecycle/internal/actors/dispatch"
	grpcactor "github.com/rbroggi/userlifecycle/internal/actors/grpc"
	"github.com/rbroggi/userlifecycle/internal/actors/rest"
	"github.com/rbroggi/userlifecycle/internal/config"
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

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("backend", cfg.Store.Backend).Error("could not initialize store")
		return err
	}
	defer closeStore()

	sender, closeSender, err := openSender(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("backend", cfg.Events.Backend).Error("could not initialize event sender")
		return err
	}
	defer closeSender()

	dispatcher, err := dispatch.NewDispatcher(dispatch.DispatcherArgs{
		Sender:      sender,
		QueueSize:   cfg.Events.QueueSize,
		Workers:     cfg.Events.Workers,
		SendTimeout: cfg.Events.SendTimeout,
	})
	if err != nil {
		return err
	}
	dispatcher.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			log.WithError(err).Error("user events lost on shutdown")
		}
	}()

	userSvcUsecase := usecase.NewUserService(usecase.UserServiceArgs{Repository: store, Emitter: dispatcher})

	healthSvc, err := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{
		Pinger:   store,
		Interval: cfg.Health.ProbeInterval,
	})
	if err != nil {
		return err
	}

	restHandler, err := rest.NewHandler(rest.HandlerArgs{Usecase: userSvcUsecase, Health: healthSvc})
	if err != nil {
		return err
	}
	mux := runtime.NewServeMux()
	if err := restHandler.Register(mux); err != nil {
		return err
	}
	var handler http.Handler = mux
	if cfg.HTTP.RateLimit > 0 {
		handler = httprate.Limit(cfg.HTTP.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))(mux)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

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
		WithField("store", cfg.Store.Backend).
		WithField("events", cfg.Events.Backend).
		Info("servers up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
}
