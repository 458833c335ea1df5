// Package engagement applies the points rule table to user activity and runs
// the badge engine after every action that may earn one.
package engagement

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/repository"
	"github.com/oggyb/cunhao-core/internal/service/badges"
	"github.com/oggyb/cunhao-core/internal/service/identity"
)

// Points rule table. Vote and approval points are granted by the proposal
// state machine.
const (
	PointsPerAction = 1
	// ScorePerPoint is how much game score is worth one point.
	ScorePerPoint = 100
)

type Config struct {
	// ScoreSecret, when set, requires game scores to carry
	// hex(sha256(platformUserID + score + secret)).
	ScoreSecret string
	Now         func() time.Time
}

type Service struct {
	db       *gorm.DB
	users    *repository.UserRepository
	usage    *repository.UsageRepository
	phrases  *repository.PhraseRepository
	identity *identity.Service
	badges   *badges.Engine
	cfg      Config
	log      *slog.Logger
}

func NewService(database *gorm.DB, ids *identity.Service, engine *badges.Engine, log *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:       database,
		users:    repository.NewUserRepository(database),
		usage:    repository.NewUsageRepository(database),
		phrases:  repository.NewPhraseRepository(database),
		identity: ids,
		badges:   engine,
		cfg:      cfg,
		log:      log,
	}
}

// Action is one user action as reported by an adapter.
type Action struct {
	MasterUserID uint64
	Platform     db.Platform
	Action       db.Action
	// PhraseID references the catalog phrase used, as built by db.PhraseID.
	PhraseID string
	Metadata map[string]any
}

// RecordAction logs the action, grants its point and returns the badges it
// earned.
//
// Behavior:
//   - The usage record, the point and the phrase usage counter are written in
//     one transaction.
//   - Storage failures are logged and swallowed: the action already happened
//     on the platform and telemetry is best-effort. Nothing is returned then.
func (s *Service) RecordAction(ctx context.Context, a Action) ([]badges.Badge, error) {
	if _, err := db.ParseAction(string(a.Action)); err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	rec := &db.UsageRecord{
		MasterUserID: a.MasterUserID,
		Platform:     a.Platform,
		Action:       a.Action,
		RecordedAt:   s.cfg.Now(),
	}
	if a.PhraseID != "" {
		rec.PhraseID = &a.PhraseID
	}
	if len(a.Metadata) > 0 {
		rec.Metadata = datatypes.JSONMap(a.Metadata)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.usage.WithTx(tx).Append(ctx, rec); err != nil {
			return err
		}
		if err := s.users.WithTx(tx).AddPoints(ctx, a.MasterUserID, PointsPerAction); err != nil {
			return err
		}
		if kind, text, ok := db.ParsePhraseID(a.PhraseID); ok {
			return s.phrases.WithTx(tx).IncrementUsage(ctx, kind, text)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to record action", "master_user_id", a.MasterUserID, "action", a.Action, "err", err)
		return nil, nil
	}

	return s.checkBadges(ctx, a.MasterUserID, a.Platform), nil
}

// GameScore is a finished game as reported by the game frontend.
type GameScore struct {
	MasterUserID   uint64
	Platform       db.Platform
	PlatformUserID string
	Score          int
	Hash           string
}

// GameResult is the master after the score was applied.
type GameResult struct {
	User         *db.User
	PointsEarned int64
	Badges       []badges.Badge
}

// SubmitGameScore applies a game score to the master's stats.
//
// Behavior:
//   - Points += ⌊score/100⌋; games played += 1; high score is the max.
//   - Streak counts consecutive UTC days: +1 when the previous game was
//     yesterday, unchanged when it was today, reset to 1 otherwise.
//   - A `game` usage record is logged in the same transaction, then badges
//     are checked.
//   - Negative score or a hash mismatch (when a secret is configured)
//     → InvalidArgument.
func (s *Service) SubmitGameScore(ctx context.Context, g GameScore) (*GameResult, error) {
	if g.Score < 0 {
		return nil, svcErr.InvalidArgument("score must not be negative")
	}
	if !s.validScore(g) {
		s.log.Warn("game score hash mismatch", "master_user_id", g.MasterUserID)
		return nil, svcErr.InvalidArgument("score hash mismatch")
	}

	points := int64(g.Score / ScorePerPoint)
	var u *db.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		var err error
		if u, err = users.GetForUpdate(ctx, g.MasterUserID); err != nil {
			return err
		}

		now := s.cfg.Now()
		u.GameStreak = nextStreak(u.GameStreak, u.LastGameAt, now)
		u.GameStats++
		u.GameHighScore = max(u.GameHighScore, g.Score)
		u.LastGameAt = &now
		if err := users.SaveGame(ctx, u, points); err != nil {
			return err
		}
		u.Points += points

		return s.usage.WithTx(tx).Append(ctx, &db.UsageRecord{
			MasterUserID: u.ID,
			Platform:     g.Platform,
			Action:       db.ActionGame,
			RecordedAt:   now,
			Metadata:     datatypes.JSONMap{"score": g.Score},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("game score applied", "master_user_id", u.ID, "score", g.Score, "points", points, "streak", u.GameStreak)
	return &GameResult{
		User:         u,
		PointsEarned: points,
		Badges:       s.checkBadges(ctx, u.ID, g.Platform),
	}, nil
}

func (s *Service) validScore(g GameScore) bool {
	if s.cfg.ScoreSecret == "" {
		return true
	}
	sum := sha256.Sum256([]byte(g.PlatformUserID + strconv.Itoa(g.Score) + s.cfg.ScoreSecret))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(g.Hash)) == 1
}

// nextStreak computes the streak after a game played at now.
func nextStreak(streak int, last *time.Time, now time.Time) int {
	if last == nil {
		return 1
	}
	switch days := daysBetween(*last, now); {
	case days == 0:
		return max(streak, 1)
	case days == 1:
		return streak + 1
	default:
		return 1
	}
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// LinkAccounts redeems a link token for (platform, platformUserID) and
// re-checks badges on the surviving master, which may now span two
// platforms.
func (s *Service) LinkAccounts(ctx context.Context, token string, platform db.Platform, platformUserID string, hint identity.Profile) (*db.User, []badges.Badge, error) {
	res, err := s.identity.CompleteLink(ctx, token, platform, platformUserID, hint)
	if err != nil {
		return nil, nil, err
	}
	return res.Survivor, s.checkBadges(ctx, res.Survivor.ID, platform), nil
}

// checkBadges runs the badge engine. Its failures never fail the action
// that triggered it.
func (s *Service) checkBadges(ctx context.Context, masterID uint64, platform db.Platform) []badges.Badge {
	earned, err := s.badges.Check(ctx, masterID, platform)
	if err != nil {
		if !errors.Is(err, svcErr.ErrNotFound) {
			s.log.Error("badge check failed", "master_user_id", masterID, "err", err)
		}
		return nil
	}
	return earned
}
