// Package scheduler runs the periodic maintenance jobs of the core: the
// proposal expiry sweep, notification outbox redelivery and link request
// purging.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// Locker serialises a job across worker processes. Implemented by
// cache.RedisCache.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	lock    Locker
	timeout time.Duration
	log     *slog.Logger
}

// New creates a stopped scheduler. lock may be nil for a single worker.
// Each run is bounded by timeout.
func New(lock Locker, timeout time.Duration, log *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{cron: cron.New(), lock: lock, timeout: timeout, log: log}
}

// Add schedules job under spec ("@every 1h", "0 */5 * * * *", ...).
func (s *Scheduler) Add(name, spec string, job Job) error {
	err := s.cron.AddFunc(spec, func() {
		_ = s.Run(context.Background(), name, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.Debug("job scheduled", "job", name, "spec", spec)
	return nil
}

// Run executes job once, holding the named lock if a Locker is set. A run
// skipped because another worker holds the lock returns nil.
func (s *Scheduler) Run(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.lock != nil {
		ok, err := s.lock.Lock(ctx, name, s.timeout)
		if err != nil {
			s.log.Error("job lock failed", "job", name, "err", err)
			return err
		}
		if !ok {
			s.log.Debug("job already running elsewhere", "job", name)
			return nil
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx), name); err != nil {
				s.log.Warn("job unlock failed", "job", name, "err", err)
			}
		}()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("job failed", "job", name, "err", err)
		return err
	}
	s.log.Debug("job done", "job", name, "took", time.Since(start))
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() { s.cron.Stop() }
