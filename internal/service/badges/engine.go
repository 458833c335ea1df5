// Package badges evaluates the static badge catalog against usage aggregates
// and records newly earned badges on the master user.
package badges

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/repository"
	"github.com/oggyb/cunhao-core/internal/service/notify"
)

// Engine is stateless apart from its dependencies; the catalog is immutable.
type Engine struct {
	db      *gorm.DB
	users   *repository.UserRepository
	usage   *repository.UsageRepository
	phrases *repository.PhraseRepository
	notify  *notify.Dispatcher
	now     func() time.Time
	log     *slog.Logger
}

// NewEngine builds the engine. dispatcher may be nil when nobody listens for
// BadgeAwarded. now drives the time-of-day badges, so its location matters.
func NewEngine(database *gorm.DB, dispatcher *notify.Dispatcher, log *slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		db:      database,
		users:   repository.NewUserRepository(database),
		usage:   repository.NewUsageRepository(database),
		phrases: repository.NewPhraseRepository(database),
		notify:  dispatcher,
		now:     now,
		log:     log,
	}
}

// Stats computes every aggregate used by the catalog, once.
func (e *Engine) Stats(ctx context.Context, u *db.User) (Stats, error) {
	return e.stats(ctx, e.db, u)
}

func (e *Engine) stats(ctx context.Context, tx *gorm.DB, u *db.User) (Stats, error) {
	usage := e.usage.WithTx(tx)
	byAction, err := usage.CountByAction(ctx, u.ID)
	if err != nil {
		return Stats{}, err
	}
	now := e.now()
	since := now.Add(-pesaoWindow)
	lastHour, err := usage.Count(ctx, repository.UsageFilter{MasterUserID: u.ID, Since: &since})
	if err != nil {
		return Stats{}, err
	}
	authored, err := e.phrases.WithTx(tx).CountByAuthor(ctx, u.ID)
	if err != nil {
		return Stats{}, err
	}
	platforms, err := e.users.WithTx(tx).CountPlatforms(ctx, u.ID)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		Now:         now,
		ByAction:    byAction,
		LastHour:    lastHour,
		Authored:    authored,
		Platforms:   platforms,
		GamesPlayed: int64(u.GameStats),
		GameStreak:  int64(u.GameStreak),
	}
	for _, n := range byAction {
		s.TotalUsage += n
	}
	return s, nil
}

// Check awards every badge the master now qualifies for and returns only the
// newly earned ones, in catalog order. Repeated calls without new activity
// return nil and write nothing.
//
// The user row is locked for the read-diff-write so concurrent checks of the
// same master serialize and never overwrite each other's badges.
func (e *Engine) Check(ctx context.Context, masterID uint64, platform db.Platform) ([]Badge, error) {
	var earned []Badge
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := e.users.WithTx(tx)
		u, err := users.GetForUpdate(ctx, masterID)
		if err != nil {
			return err
		}
		if u.GDPRErased {
			return nil
		}

		stats, err := e.stats(ctx, tx, u)
		if err != nil {
			return err
		}
		for _, b := range catalog {
			if !u.HasBadge(b.Code) && b.Earned(stats) {
				earned = append(earned, b)
			}
		}
		if len(earned) == 0 {
			return nil
		}

		codes := slices.Clone([]string(u.Badges))
		for _, b := range earned {
			codes = append(codes, b.Code)
		}
		return users.SetBadges(ctx, u.ID, codes)
	})
	if err != nil || len(earned) == 0 {
		return nil, err
	}

	e.log.Info("badges awarded", "master_user_id", masterID, "count", len(earned))
	if e.notify != nil {
		refs := make([]notify.BadgeRef, 0, len(earned))
		for _, b := range earned {
			refs = append(refs, notify.BadgeRef{Code: b.Code, Name: b.Name, Icon: b.Icon})
		}
		e.notify.Emit(ctx, notify.Event{
			Type:         notify.BadgeAwarded,
			MasterUserID: masterID,
			Badges:       refs,
		}, notify.User(masterID, platform))
	}
	return earned, nil
}

// Progress is the profile view of one badge.
type Progress struct {
	Badge   Badge
	Current int64
	Target  int64
	Earned  bool
}

// Progress reports the state of every catalog badge for the master. Pure read.
func (e *Engine) Progress(ctx context.Context, masterID uint64) ([]Progress, error) {
	u, err := e.users.Get(ctx, masterID)
	if err != nil {
		return nil, err
	}
	stats, err := e.Stats(ctx, u)
	if err != nil {
		return nil, err
	}

	out := make([]Progress, 0, len(catalog))
	for _, b := range catalog {
		cur := b.Current(stats)
		out = append(out, Progress{
			Badge:   b,
			Current: cur,
			Target:  b.Target,
			Earned:  u.HasBadge(b.Code) || cur >= b.Target,
		})
	}
	return out, nil
}
