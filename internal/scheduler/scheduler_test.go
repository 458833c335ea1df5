package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/cunhao-core/internal/cache"
	"github.com/oggyb/cunhao-core/internal/config"
	"github.com/oggyb/cunhao-core/internal/logger"
	"github.com/oggyb/cunhao-core/internal/scheduler"
)

func redisLock(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	return cache.NewRedisCache(cfg)
}

func TestRun_HoldsLock(t *testing.T) {
	ctx := context.Background()
	rdb := redisLock(t)
	s := scheduler.New(rdb, time.Second, logger.Discard())

	runs := 0
	job := func(context.Context) error { runs++; return nil }

	require.NoError(t, s.Run(ctx, "sweep", job))
	assert.Equal(t, 1, runs)

	// another worker holds the lock
	ok, err := rdb.Lock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Run(ctx, "sweep", job))
	assert.Equal(t, 1, runs)

	require.NoError(t, rdb.Unlock(ctx, "sweep"))
	require.NoError(t, s.Run(ctx, "sweep", job))
	assert.Equal(t, 2, runs)
}

func TestRun_ReturnsJobError(t *testing.T) {
	s := scheduler.New(nil, time.Second, logger.Discard())
	boom := errors.New("boom")

	err := s.Run(context.Background(), "x", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

type fakeJobs struct {
	expiredAt time.Time
	limit     int
	purged    bool
}

func (f *fakeJobs) Expire(_ context.Context, now time.Time) (int, error) {
	f.expiredAt = now
	return 1, nil
}

func (f *fakeJobs) RetryPending(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return 0, nil
}

func (f *fakeJobs) PurgeLinkRequests(context.Context) (int64, error) {
	f.purged = true
	return 0, nil
}

func TestCoreTasks(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.Proposals.ExpireSchedule = "@every 1h"
	cfg.Notify.RetrySchedule = "@every 30s"
	cfg.Identity.PurgeSchedule = "@every 15m"

	jobs := &fakeJobs{}
	tasks := scheduler.CoreTasks(cfg, jobs, jobs, jobs, logger.Discard())
	require.Len(t, tasks, 3)

	s := scheduler.New(nil, time.Second, logger.Discard())
	require.NoError(t, s.AddTasks(tasks...))
	for _, task := range tasks {
		require.NoError(t, s.Run(ctx, task.Name, task.Job))
	}
	assert.WithinDuration(t, time.Now().UTC(), jobs.expiredAt, time.Minute)
	assert.Equal(t, 100, jobs.limit)
	assert.True(t, jobs.purged)

	cfg.Identity.PurgeSchedule = "every now and then"
	err := scheduler.New(nil, time.Second, logger.Discard()).AddTasks(scheduler.CoreTasks(cfg, jobs, jobs, jobs, logger.Discard())...)
	assert.ErrorContains(t, err, scheduler.JobPurgeLinks)
}

func TestScheduler_FiresJobs(t *testing.T) {
	s := scheduler.New(nil, time.Second, logger.Discard())
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}))

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
}
