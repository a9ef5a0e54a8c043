package main

import (
	"flag"
	"os"

	postgresactor "github.com/rbroggi/userlifecycle/internal/actors/postgres"
	"github.com/rbroggi/userlifecycle/internal/config"
	log "github.com/sirupsen/logrus"
)

var (
	down = flag.Bool("down", false, "run migration down")
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

func main() {
	flag.Parse()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("error loading config")
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.WithError(err).Fatal("error configuring logging")
	}
	if err := postgresactor.Migrate(postgresactor.MigrateArgs{
		URL:  cfg.Postgres.URL,
		Dir:  cfg.Postgres.MigrationsDir,
		Down: *down,
	}); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	log.WithField("down", *down).Info("migration done")
}
