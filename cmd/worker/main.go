/*
 * @module cmd/worker
 * @description Background worker process (C4): cron-schedules the
 *   popularity aggregator and CF trainer, each guarded by a distributed
 *   lock against duplicate execution across replicas.
 */
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"feedranker/internal/cache"
	"feedranker/internal/config"
	"feedranker/internal/lock"
	"feedranker/internal/store"
	"feedranker/internal/workers"
	"feedranker/logger"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	popularityCronSpec = "0 0 * * * *" // top of every hour
	cfTrainerCronSpec  = "0 0 */6 * * *" // every 6 hours
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
	features := store.NewFeatureRepo(db)

	popularity := workers.NewPopularityAggregator(interactions, products, c)
	trainer := workers.NewCFTrainer(interactions, features, c, workers.DefaultTrainerConfig(cfg.LatentDim))

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parsing redis url: %v", err)
	}
	l := lock.New(redis.NewClient(redisOpt))
	scheduler := workers.NewScheduler(l, popularity, trainer)

	if err := scheduler.Start(popularityCronSpec, cfTrainerCronSpec); err != nil {
		log.Fatalf("starting scheduler: %v", err)
	}

	slog.Info("worker process started", "popularitySchedule", popularityCronSpec, "cfTrainSchedule", cfTrainerCronSpec)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	scheduler.Stop()
	slog.Info("worker process stopped")
}
