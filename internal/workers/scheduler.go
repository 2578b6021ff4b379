/*
 * @module internal/workers/scheduler
 * @description Cron-driven scheduling of the popularity aggregator and CF
 *   trainer, each guarded by a distributed lock so only one worker replica
 *   runs a given job at a time. Adapted from the source's
 *   SchedulerService, narrowed from a generic task table to these two
 *   fixed jobs.
 * @architecture Batch worker - scheduling
 * @dependencies github.com/robfig/cron/v3, feedranker/internal/lock
 */
package workers

import (
	"context"
	"log/slog"
	"time"

	"feedranker/internal/lock"
	"feedranker/internal/metrics"

	"github.com/robfig/cron/v3"
)

const (
	popularityLockKey = "popularity_aggregator"
	cfTrainerLockKey  = "cf_trainer"
	lockTTL           = 30 * time.Minute
)

// Scheduler runs the two C4 batch jobs on cron schedules.
type Scheduler struct {
	cron        *cron.Cron
	executor    *lock.Executor
	popularity  *PopularityAggregator
	trainer     *CFTrainer
}

func NewScheduler(l lock.Locker, popularity *PopularityAggregator, trainer *CFTrainer) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		executor:   lock.NewExecutor(l),
		popularity: popularity,
		trainer:    trainer,
	}
}

// Start registers both jobs and starts the cron loop. popularitySpec and
// cfSpec are standard 6-field cron expressions (seconds-first, per
// cron.WithSeconds).
func (s *Scheduler) Start(popularitySpec, cfSpec string) error {
	if _, err := s.cron.AddFunc(popularitySpec, s.runPopularity); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(cfSpec, s.runCFTrainer); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runPopularity() {
	ctx := context.Background()
	timer := metrics.StartTimer(metrics.WorkerRunDuration.WithLabelValues("popularity"))
	defer timer.Stop()

	err := s.executor.Run(ctx, popularityLockKey, lockTTL, func(ctx context.Context) error {
		return s.popularity.Run(ctx)
	})
	if err != nil {
		slog.Error("popularity aggregator run failed", "error", err)
	}
}

func (s *Scheduler) runCFTrainer() {
	ctx := context.Background()
	timer := metrics.StartTimer(metrics.WorkerRunDuration.WithLabelValues("cf_trainer"))
	defer timer.Stop()

	err := s.executor.Run(ctx, cfTrainerLockKey, lockTTL, func(ctx context.Context) error {
		return s.trainer.Run(ctx)
	})
	if err != nil {
		slog.Error("cf trainer run failed", "error", err)
	}
}
