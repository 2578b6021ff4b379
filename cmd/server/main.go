/*
 * @module cmd/server
 * @description Feed ranker HTTP service entry point: wires config, store,
 *   cache, bandit and ranker, then serves /feed, /events, /health and
 *   /metrics behind dapr's HTTP service wrapper.
 */
package main

import (
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"

	"feedranker/api"
	"feedranker/internal/bandit"
	"feedranker/internal/cache"
	"feedranker/internal/config"
	"feedranker/internal/ranker"
	"feedranker/internal/ratelimit"
	"feedranker/internal/store"
	"feedranker/logger"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
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
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	c, err := cache.Dial(cfg.RedisURL)
	if err != nil {
		log.Fatalf("connecting to cache: %v", err)
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parsing redis url: %v", err)
	}

	products := store.NewProductRepo(db)
	sampler := bandit.NewSampler(c, rand.New(rand.NewSource(1)))
	rk := ranker.New(c, products, sampler, cfg.RankerWeights)
	limiter := ratelimit.New(redis.NewClient(redisOpt))

	mux := chi.NewRouter()
	routerTarget := mux
	if cfg.BaseContext != "" {
		mux.Route(cfg.BaseContext, func(r chi.Router) {
			api.InitRoutes(r.(*chi.Mux), api.Dependencies{Ranker: rk, Cache: c, Limiter: limiter})
		})
	} else {
		api.InitRoutes(routerTarget, api.Dependencies{Ranker: rk, Cache: c, Limiter: limiter})
	}

	slog.Info("feed ranker server starting", "port", cfg.ListenPort)
	s := daprd.NewServiceWithMux(":"+strconv.Itoa(cfg.ListenPort), mux)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
