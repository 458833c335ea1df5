package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/oggyb/cunhao-core/internal/config"
)

// Job names, also used as lock names.
const (
	JobExpireProposals = "expire_proposals"
	JobRetryOutbox     = "retry_outbox"
	JobPurgeLinks      = "purge_link_requests"
)

// outboxBatch bounds one redelivery pass.
const outboxBatch = 100

type Expirer interface {
	Expire(ctx context.Context, now time.Time) (int, error)
}

type OutboxDrainer interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

type LinkPurger interface {
	PurgeLinkRequests(ctx context.Context) (int64, error)
}

// Task is a named job with its cron spec.
type Task struct {
	Name string
	Spec string
	Job  Job
}

// CoreTasks returns the maintenance jobs of the core on their configured specs.
func CoreTasks(cfg *config.Config, proposals Expirer, outbox OutboxDrainer, links LinkPurger, log *slog.Logger) []Task {
	return []Task{
		{
			Name: JobExpireProposals,
			Spec: cfg.Proposals.ExpireSchedule,
			Job: func(ctx context.Context) error {
				n, err := proposals.Expire(ctx, time.Now().UTC())
				if n > 0 {
					log.Info("expiry sweep", "expired", n)
				}
				return err
			},
		},
		{
			Name: JobRetryOutbox,
			Spec: cfg.Notify.RetrySchedule,
			Job: func(ctx context.Context) error {
				n, err := outbox.RetryPending(ctx, outboxBatch)
				if n > 0 {
					log.Info("outbox drained", "delivered", n)
				}
				return err
			},
		},
		{
			Name: JobPurgeLinks,
			Spec: cfg.Identity.PurgeSchedule,
			Job: func(ctx context.Context) error {
				_, err := links.PurgeLinkRequests(ctx)
				return err
			},
		},
	}
}

// AddTasks schedules every task, stopping at the first invalid spec.
func (s *Scheduler) AddTasks(tasks ...Task) error {
	for _, t := range tasks {
		if err := s.Add(t.Name, t.Spec, t.Job); err != nil {
			return err
		}
	}
	return nil
}
