package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/db/dbtest"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/repository"
)

func TestUsageRepository_CountFilters(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUsageRepository(dbtest.New(t))
	now := time.Now().UTC()

	records := []db.UsageRecord{
		{MasterUserID: 1, Platform: db.PlatformTelegram, Action: db.ActionPhrase, RecordedAt: now.Add(-2 * time.Hour)},
		{MasterUserID: 1, Platform: db.PlatformTelegram, Action: db.ActionPhrase, RecordedAt: now},
		{MasterUserID: 1, Platform: db.PlatformSlack, Action: db.ActionVision, RecordedAt: now},
		{MasterUserID: 2, Platform: db.PlatformSlack, Action: db.ActionPhrase, RecordedAt: now},
	}
	for i := range records {
		require.NoError(t, repo.Append(ctx, &records[i]))
	}

	tg := db.PlatformTelegram
	phrase := db.ActionPhrase
	since := now.Add(-time.Hour)

	cases := []struct {
		name string
		f    repository.UsageFilter
		want int64
	}{
		{"all platforms", repository.UsageFilter{MasterUserID: 1}, 3},
		{"telegram only", repository.UsageFilter{MasterUserID: 1, Platform: &tg}, 2},
		{"phrase action", repository.UsageFilter{MasterUserID: 1, Action: &phrase}, 2},
		{"last hour", repository.UsageFilter{MasterUserID: 1, Since: &since}, 2},
		{"other user", repository.UsageFilter{MasterUserID: 2}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			n, err := repo.Count(ctx, c.f)
			require.NoError(t, err)
			assert.Equal(t, c.want, n)
		})
	}

	byAction, err := repo.CountByAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[db.Action]int64{db.ActionPhrase: 2, db.ActionVision: 1}, byAction)
}

func TestUsageRepository_RewriteAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUsageRepository(dbtest.New(t))

	for _, master := range []uint64{1, 1, 2} {
		require.NoError(t, repo.Append(ctx, &db.UsageRecord{
			MasterUserID: master,
			Platform:     db.PlatformTelegram,
			Action:       db.ActionSticker,
			RecordedAt:   time.Now().UTC(),
		}))
	}

	require.NoError(t, repo.RewriteMaster(ctx, 1, 2))
	n, err := repo.Count(ctx, repository.UsageFilter{MasterUserID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, repo.DeleteByMaster(ctx, 2))
	n, err = repo.Count(ctx, repository.UsageFilter{MasterUserID: 2})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUsageRepository_StorageUnavailable(t *testing.T) {
	gdb, _ := dbtest.Unavailable(t)
	repo := repository.NewUsageRepository(gdb)

	_, err := repo.Count(context.Background(), repository.UsageFilter{MasterUserID: 1})
	assert.ErrorIs(t, err, svcErr.ErrStorageUnavailable)
}
