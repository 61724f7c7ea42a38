package main

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/purrfect-spots/treats-ledger/internal/api"
	"github.com/purrfect-spots/treats-ledger/internal/cache"
	"github.com/purrfect-spots/treats-ledger/internal/config"
	"github.com/purrfect-spots/treats-ledger/internal/service"
	"github.com/purrfect-spots/treats-ledger/internal/store"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	if cfg.Env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	ledgerStore, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logrus.Fatalf("Unable to connect to database: %v", err)
	}
	defer ledgerStore.Close()

	if err := ledgerStore.Migrate(context.Background()); err != nil {
		logrus.Fatalf("Migration failed: %v", err)
	}

	// Leaderboard cache is optional: no REDIS_ADDR means every read goes to
	// Postgres.
	var lbCache *cache.Leaderboard
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("Unable to connect to Redis: %v", err)
		}
		lbCache = cache.NewLeaderboard(redisClient)
	}

	ledger := service.NewLedger(ledgerStore.Db)
	handler := api.NewHandler(ledgerStore, ledger, lbCache)
	router := api.NewRouter(handler)

	logrus.Infof("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logrus.Fatal(err)
	}
}
