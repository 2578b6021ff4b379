/*
 * @module cmd/consumer
 * @description Event consumer process (C3): drains the events queue,
 *   horizontally scalable: run as many replicas as needed against the
 *   same Redis queue.
 */
package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand"
	"os/signal"
	"syscall"

	"feedranker/internal/bandit"
	"feedranker/internal/cache"
	"feedranker/internal/config"
	"feedranker/internal/eventbus"
	"feedranker/internal/ingest"
	"feedranker/internal/store"
	"feedranker/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	logger.InitLogger()
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("connecting to store: %v", err)
	}

	c, err := cache.Dial(cfg.RedisURL)
	if err != nil {
		log.Fatalf("connecting to cache: %v", err)
	}

	products := store.NewProductRepo(db)
	interactions := store.NewInteractionRepo(db)
	sampler := bandit.NewSampler(c, rand.New(rand.NewSource(1)))

	var mirror *eventbus.Mirror
	if len(cfg.KafkaBrokers) > 0 {
		mirror = eventbus.NewMirror(cfg.KafkaBrokers)
		defer mirror.Close()
	}

	consumer := ingest.NewConsumer(c, products, interactions, sampler, mirror)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("event consumer starting")
	consumer.Run(ctx)
	slog.Info("event consumer stopped")
}
