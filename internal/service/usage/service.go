// Package usage is the append-only log of user actions and its aggregates.
package usage

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/repository"
)

type Service struct {
	repo *repository.UsageRepository
	now  func() time.Time
	log  *slog.Logger
}

func NewService(database *gorm.DB, log *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repository.NewUsageRepository(database), now: now, log: log}
}

// Entry is one action to log. PhraseID and Metadata are optional.
type Entry struct {
	MasterUserID uint64
	Platform     db.Platform
	Action       db.Action
	PhraseID     string
	Metadata     map[string]any
}

// Log appends one record with a server-assigned timestamp. Usage is
// best-effort telemetry: failures are logged and swallowed, and the return
// value only tells the caller whether the record was written.
func (s *Service) Log(ctx context.Context, e Entry) bool {
	rec := &db.UsageRecord{
		MasterUserID: e.MasterUserID,
		Platform:     e.Platform,
		Action:       e.Action,
		RecordedAt:   s.now(),
	}
	if e.PhraseID != "" {
		rec.PhraseID = &e.PhraseID
	}
	if len(e.Metadata) > 0 {
		rec.Metadata = datatypes.JSONMap(e.Metadata)
	}

	if err := s.repo.Append(ctx, rec); err != nil {
		s.log.Error("usage log failed", "master_user_id", e.MasterUserID, "action", e.Action, "err", err)
		return false
	}
	return true
}

// Count returns how many actions the master performed. A nil platform counts
// across platforms (the profile view).
func (s *Service) Count(ctx context.Context, masterID uint64, platform *db.Platform, action *db.Action) (int64, error) {
	return s.repo.Count(ctx, repository.UsageFilter{MasterUserID: masterID, Platform: platform, Action: action})
}

// CountSince counts every action of the master at or after since.
func (s *Service) CountSince(ctx context.Context, masterID uint64, since time.Time) (int64, error) {
	return s.repo.Count(ctx, repository.UsageFilter{MasterUserID: masterID, Since: &since})
}

// CountByKind maps each action to its count for the master.
func (s *Service) CountByKind(ctx context.Context, masterID uint64) (map[db.Action]int64, error) {
	return s.repo.CountByAction(ctx, masterID)
}
