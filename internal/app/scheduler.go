package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"app_reviews/internal/adapters/observability"
)

// Poller is the part of SyncService the scheduler drives.
type Poller interface {
	Poll(ctx context.Context, appID int64) (SyncResult, error)
}

// CycleSummary reports one pass over every tracked application.
type CycleSummary struct {
	ID     string
	Apps   int
	Failed int
	Added  int
}

type Scheduler struct {
	poller   Poller
	appIDs   []int64
	interval time.Duration
	workers  int64
}

// NewScheduler polls appIDs every interval with at most workers apps in
// flight. workers < 1 means sequential.
func NewScheduler(p Poller, appIDs []int64, interval time.Duration, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		poller:   p,
		appIDs:   append([]int64(nil), appIDs...),
		interval: interval,
		workers:  int64(workers),
	}
}

// Run executes a cycle immediately and then once per interval until ctx is
// done. A graceful stop returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Int("apps", len(s.appIDs)).
		Dur("interval", s.interval).
		Int64("workers", s.workers).
		Msg("scheduler starting")

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-t.C:
		}
		s.RunCycle(ctx)
		t.Reset(s.interval)
	}
}

// RunCycle polls every tracked application once. Poll errors and panics
// are logged and counted, never returned.
func (s *Scheduler) RunCycle(ctx context.Context) CycleSummary {
	sum := CycleSummary{ID: uuid.NewString(), Apps: len(s.appIDs)}
	lg := log.With().Str("cycle_id", sum.ID).Logger()
	start := time.Now()

	sem := semaphore.NewWeighted(s.workers)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range s.appIDs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			lg.Warn().Err(err).Msg("cycle interrupted")
			break
		}
		wg.Add(1)
		go func(appID int64) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := s.pollOne(ctx, appID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed++
				lg.Warn().Int64("app_id", appID).Err(err).Msg("poll failed")
				return
			}
			sum.Added += res.Added
		}(id)
	}
	wg.Wait()

	observability.ObserveCycle()
	lg.Info().
		Int("apps", sum.Apps).
		Int("failed", sum.Failed).
		Int("added", sum.Added).
		Dur("took", time.Since(start)).
		Msg("cycle complete")
	return sum
}

func (s *Scheduler) pollOne(ctx context.Context, appID int64) (res SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("app_id", appID).Interface("panic", r).Msg("poll panicked")
			observability.ObservePoll("panic", 0, 0, 0)
			err = fmt.Errorf("poll app %d: panic: %v", appID, r)
		}
	}()
	return s.poller.Poll(ctx, appID)
}
