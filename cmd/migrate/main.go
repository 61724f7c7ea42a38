package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/purrfect-spots/treats-ledger/internal/config"
	"github.com/purrfect-spots/treats-ledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	s, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logrus.Fatalf("Unable to connect to database: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(context.Background()); err != nil {
		logrus.Fatalf("Migration failed: %v", err)
	}
	logrus.Info("Schema is up to date")
}
