package badges_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/db/dbtest"
	"github.com/oggyb/cunhao-core/internal/logger"
	"github.com/oggyb/cunhao-core/internal/repository"
	"github.com/oggyb/cunhao-core/internal/service/badges"
	"github.com/oggyb/cunhao-core/internal/service/notify"
	"github.com/oggyb/cunhao-core/internal/service/notify/notifytest"
)

var now = time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*badges.Engine, *gorm.DB, *notifytest.Recorder) {
	t.Helper()
	return setupEngineAt(t, now)
}

func setupEngineAt(t *testing.T, at time.Time) (*badges.Engine, *gorm.DB, *notifytest.Recorder) {
	t.Helper()
	gdb := dbtest.New(t)
	rec := &notifytest.Recorder{}
	dispatcher := notify.NewDispatcher(rec, nil, logger.Discard())
	return badges.NewEngine(gdb, dispatcher, logger.Discard(), func() time.Time { return at }), gdb, rec
}

func seedMaster(t *testing.T, gdb *gorm.DB) *db.User {
	t.Helper()
	users := repository.NewUserRepository(gdb)
	u := &db.User{DisplayName: "Paco", Platform: db.PlatformTelegram}
	require.NoError(t, users.Create(context.Background(), u))
	require.NoError(t, users.CreateAlias(context.Background(), &db.Alias{
		Platform: db.PlatformTelegram, PlatformUserID: "7", MasterUserID: u.ID, LinkedAt: now,
	}))
	return u
}

func logActions(t *testing.T, gdb *gorm.DB, masterID uint64, action db.Action, n int, at time.Time) {
	t.Helper()
	usage := repository.NewUsageRepository(gdb)
	for range n {
		require.NoError(t, usage.Append(context.Background(), &db.UsageRecord{
			MasterUserID: masterID, Platform: db.PlatformTelegram, Action: action, RecordedAt: at,
		}))
	}
}

func codes(bs []badges.Badge) []string {
	var out []string
	for _, b := range bs {
		out = append(out, b.Code)
	}
	return out
}

func TestCatalogOrderAndLookup(t *testing.T) {
	want := []string{
		"madrugador", "trasnochador", "fiera_total", "visionario", "pesao", "poeta",
		"multiplataforma", "jugon", "racha",
	}
	if diff := cmp.Diff(want, codes(badges.Catalog())); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}

	b, ok := badges.Lookup("fiera_total")
	require.True(t, ok)
	assert.Equal(t, "🔥", b.Icon)
	assert.Equal(t, int64(50), b.Target)

	b, ok = badges.Lookup("trasnochador")
	require.True(t, ok)
	assert.Equal(t, "🦉", b.Icon)

	_, ok = badges.Lookup("nope")
	assert.False(t, ok)
}

func TestCheck_AwardsOnceInCatalogOrder(t *testing.T) {
	ctx := context.Background()
	engine, gdb, rec := setupEngine(t)
	u := seedMaster(t, gdb)

	// 40 old phrases + 10 vision actions in the last hour: fiera_total, visionario and pesao
	logActions(t, gdb, u.ID, db.ActionPhrase, 40, now.Add(-48*time.Hour))
	logActions(t, gdb, u.ID, db.ActionVision, 10, now.Add(-10*time.Minute))

	earned, err := engine.Check(ctx, u.ID, db.PlatformTelegram)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"fiera_total", "visionario", "pesao"}, codes(earned)); diff != "" {
		t.Errorf("earned mismatch (-want +got):\n%s", diff)
	}

	got, err := repository.NewUserRepository(gdb).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fiera_total", "visionario", "pesao"}, []string(got.Badges))

	awarded := rec.OfType(notify.BadgeAwarded)
	require.Len(t, awarded, 1)
	assert.Len(t, awarded[0].Event.Badges, 3)
	assert.Equal(t, notify.User(u.ID, db.PlatformTelegram), awarded[0].To[0])

	// idempotent
	again, err := engine.Check(ctx, u.ID, db.PlatformTelegram)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, rec.OfType(notify.BadgeAwarded), 1)
}

func TestCheck_PoetaAndMultiplataforma(t *testing.T) {
	ctx := context.Background()
	engine, gdb, _ := setupEngine(t)
	u := seedMaster(t, gdb)

	phrases := repository.NewPhraseRepository(gdb)
	for _, text := range []string{"uno", "dos", "tres", "cuatro", "cinco"} {
		require.NoError(t, phrases.Create(ctx, &db.Phrase{Kind: db.KindShort, Text: text, Normalized: text, AuthorUserID: &u.ID}))
	}
	require.NoError(t, repository.NewUserRepository(gdb).CreateAlias(ctx, &db.Alias{
		Platform: db.PlatformSlack, PlatformUserID: "U1", MasterUserID: u.ID, LinkedAt: now,
	}))

	earned, err := engine.Check(ctx, u.ID, db.PlatformSlack)
	require.NoError(t, err)
	assert.Equal(t, []string{"poeta", "multiplataforma"}, codes(earned))
}

func TestCheck_SkipsErasedUsers(t *testing.T) {
	ctx := context.Background()
	engine, gdb, _ := setupEngine(t)
	u := seedMaster(t, gdb)
	logActions(t, gdb, u.ID, db.ActionPhrase, 60, now)
	require.NoError(t, repository.NewUserRepository(gdb).MarkErased(ctx, u.ID))

	earned, err := engine.Check(ctx, u.ID, db.PlatformTelegram)
	require.NoError(t, err)
	assert.Empty(t, earned)
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	engine, gdb, _ := setupEngine(t)
	u := seedMaster(t, gdb)
	logActions(t, gdb, u.ID, db.ActionVision, 4, now.Add(-3*time.Hour))

	progress, err := engine.Progress(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, progress, len(badges.Catalog()))

	byCode := map[string]badges.Progress{}
	for _, p := range progress {
		byCode[p.Badge.Code] = p
	}
	assert.Equal(t, int64(4), byCode["fiera_total"].Current)
	assert.Equal(t, int64(4), byCode["visionario"].Current)
	assert.Equal(t, int64(0), byCode["pesao"].Current)
	assert.Equal(t, int64(1), byCode["multiplataforma"].Current)
	assert.False(t, byCode["visionario"].Earned)

	// pure read
	got, err := repository.NewUserRepository(gdb).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Badges)
}

func TestCheck_TimeOfDayWindows(t *testing.T) {
	day := func(h, m int) time.Time { return time.Date(2026, 6, 1, h, m, 0, 0, time.UTC) }
	cases := []struct {
		at   time.Time
		want []string
	}{
		{day(1, 59), nil},
		{day(2, 0), []string{"trasnochador"}},
		{day(4, 59), []string{"trasnochador"}},
		{day(5, 0), []string{"madrugador"}},
		{day(7, 30), []string{"madrugador"}},
		{day(7, 31), nil},
		{day(12, 0), nil},
	}
	for _, c := range cases {
		t.Run(c.at.Format("1504"), func(t *testing.T) {
			engine, gdb, _ := setupEngineAt(t, c.at)
			u := seedMaster(t, gdb)

			earned, err := engine.Check(context.Background(), u.ID, db.PlatformTelegram)
			require.NoError(t, err)
			assert.Equal(t, c.want, codes(earned))
		})
	}
}

func TestCheck_ConcurrentChecksKeepEveryBadge(t *testing.T) {
	ctx := context.Background()
	engine, gdb, rec := setupEngine(t)
	u := seedMaster(t, gdb)
	logActions(t, gdb, u.ID, db.ActionVision, 10, now.Add(-48*time.Hour))
	logActions(t, gdb, u.ID, db.ActionPhrase, 40, now.Add(-48*time.Hour))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		earned []string
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.Check(ctx, u.ID, db.PlatformTelegram)
			assert.NoError(t, err)
			mu.Lock()
			earned = append(earned, codes(got)...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// each badge is handed out by exactly one of the racing checks
	assert.ElementsMatch(t, []string{"fiera_total", "visionario"}, earned)
	assert.Len(t, rec.OfType(notify.BadgeAwarded), 1)

	got, err := repository.NewUserRepository(gdb).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fiera_total", "visionario"}, []string(got.Badges))

	again, err := engine.Check(ctx, u.ID, db.PlatformTelegram)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCheck_KeepsBadgesWrittenBetweenChecks(t *testing.T) {
	ctx := context.Background()
	engine, gdb, _ := setupEngine(t)
	u := seedMaster(t, gdb)
	users := repository.NewUserRepository(gdb)

	// a badge stored by another writer after the first check must survive the next award
	require.NoError(t, users.SetBadges(ctx, u.ID, []string{"jugon"}))
	logActions(t, gdb, u.ID, db.ActionVision, 10, now.Add(-48*time.Hour))

	earned, err := engine.Check(ctx, u.ID, db.PlatformTelegram)
	require.NoError(t, err)
	assert.Equal(t, []string{"visionario"}, codes(earned))

	got, err := users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"jugon", "visionario"}, []string(got.Badges))
}
