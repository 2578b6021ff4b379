/*
 * @module api/routes
 * @description HTTP route configuration: health, feed, events and metrics.
 * @architecture RESTful API
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 */
package api

import (
	"net/http"
	"time"

	"feedranker/api/controllers"
	"feedranker/internal/cache"
	"feedranker/internal/ranker"
	"feedranker/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies bundles everything the route tree needs to construct its
// controllers.
type Dependencies struct {
	Ranker  *ranker.Ranker
	Cache   *cache.Cache
	Limiter *ratelimit.Limiter
}

// InitRoutes wires every HTTP route onto r.
func InitRoutes(r *chi.Mux, deps Dependencies) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := controllers.NewHealthController()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	rateLimitMW := rateLimitMiddleware(deps.Limiter)

	feed := controllers.NewFeedController(deps.Ranker)
	r.With(rateLimitMW).Get("/feed", feed.GetFeed)

	events := controllers.NewEventController(deps.Cache)
	r.With(rateLimitMW).Post("/events", events.PostEvent)
}

// rateLimitMiddleware applies the per-session/per-user rate limit tiers to
// the feed/event endpoints.
func rateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			var rules []ratelimit.Rule

			if userID := req.URL.Query().Get("userId"); userID != "" {
				rules = append(rules, ratelimit.Rule{Tier: ratelimit.TierUser, TargetID: userID, Window: time.Minute, MaxRequests: 120})
			}
			if sessionID := req.URL.Query().Get("sessionId"); sessionID != "" {
				rules = append(rules, ratelimit.Rule{Tier: ratelimit.TierSession, TargetID: sessionID, Window: time.Minute, MaxRequests: 300})
			}

			if len(rules) > 0 {
				result, err := limiter.Check(req.Context(), rules)
				if err == nil && !result.Allowed {
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				// On limiter error, degrade open: availability over strict
				// enforcement, consistent with the cache-unavailable policy.
			}

			next.ServeHTTP(w, req)
		})
	}
}
