// Package identity implements the master/alias user model: get-or-create of
// platform identities, link tokens and the account merge they trigger, and
// GDPR erasure.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/repository"
)

const (
	// tokenAlphabet has 32 symbols without the look-alikes 0/O and 1/I,
	// so every character carries 5 bits.
	tokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	tokenLength   = 8 // 40 bits

	mintAttempts = 3
)

// Profile carries what the adapter knows about a platform user.
type Profile struct {
	DisplayName string
}

type Config struct {
	LinkTokenTTL time.Duration
	Now          func() time.Time
}

// Service implements the identity operations on top of the user, alias and
// link request repositories.
type Service struct {
	db        *gorm.DB
	users     *repository.UserRepository
	links     *repository.LinkRequestRepository
	usage     *repository.UsageRepository
	phrases   *repository.PhraseRepository
	proposals *repository.ProposalRepository
	tokenTTL  time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewService(database *gorm.DB, log *slog.Logger, cfg Config) *Service {
	if cfg.LinkTokenTTL <= 0 {
		cfg.LinkTokenTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:        database,
		users:     repository.NewUserRepository(database),
		links:     repository.NewLinkRequestRepository(database),
		usage:     repository.NewUsageRepository(database),
		phrases:   repository.NewPhraseRepository(database),
		proposals: repository.NewProposalRepository(database),
		tokenTTL:  cfg.LinkTokenTTL,
		now:       cfg.Now,
		log:       log,
	}
}

// Resolve returns the master user of a platform identity, creating both the
// master and the alias on first sight.
//
// Behavior:
//   - Master is written first, then the alias. If the alias write loses a race
//     against a concurrent Resolve, the winner's master is returned and the
//     freshly created master is left orphaned.
//   - last_seen_at is refreshed on every call.
func (s *Service) Resolve(ctx context.Context, platform db.Platform, platformUserID string, hint Profile) (*db.User, error) {
	if platformUserID == "" {
		return nil, svcErr.InvalidArgument("platform user id is required")
	}

	u, err := s.lookup(ctx, s.users, platform, platformUserID)
	if err == nil {
		if err := s.users.Touch(ctx, u.ID, s.now()); err != nil {
			s.log.Warn("failed to touch user", "master_user_id", u.ID, "err", err)
		}
		return u, nil
	}
	if !errors.Is(err, svcErr.ErrNotFound) {
		return nil, err
	}

	u, err = s.create(ctx, s.users, platform, platformUserID, hint)
	if errors.Is(err, svcErr.ErrDuplicate) {
		// lost the race, the alias now exists
		return s.lookup(ctx, s.users, platform, platformUserID)
	}
	return u, err
}

// MasterID returns the master id of a platform identity without creating it.
func (s *Service) MasterID(ctx context.Context, platform db.Platform, platformUserID string) (uint64, bool, error) {
	a, err := s.users.FindAlias(ctx, platform, platformUserID)
	if errors.Is(err, svcErr.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return a.MasterUserID, true, nil
}

func (s *Service) Get(ctx context.Context, masterID uint64) (*db.User, error) {
	return s.users.Get(ctx, masterID)
}

func (s *Service) lookup(ctx context.Context, users *repository.UserRepository, platform db.Platform, platformUserID string) (*db.User, error) {
	a, err := users.FindAlias(ctx, platform, platformUserID)
	if err != nil {
		return nil, err
	}
	return users.Get(ctx, a.MasterUserID)
}

func (s *Service) create(ctx context.Context, users *repository.UserRepository, platform db.Platform, platformUserID string, hint Profile) (*db.User, error) {
	now := s.now()
	u := &db.User{
		DisplayName: hint.DisplayName,
		Platform:    platform,
		LastSeenAt:  now,
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, err
	}
	err := users.CreateAlias(ctx, &db.Alias{
		Platform:       platform,
		PlatformUserID: platformUserID,
		MasterUserID:   u.ID,
		LinkedAt:       now,
	})
	if err != nil {
		s.log.Warn("alias write failed after master create", "master_user_id", u.ID, "platform", platform, "err", err)
		return nil, err
	}
	s.log.Info("master user created", "master_user_id", u.ID, "platform", platform)
	return u, nil
}

// GenerateLinkToken mints a one-shot token for merging masterID into the
// account that redeems it.
func (s *Service) GenerateLinkToken(ctx context.Context, masterID uint64, platform db.Platform) (string, error) {
	if _, err := s.users.Get(ctx, masterID); err != nil {
		return "", err
	}

	now := s.now()
	for attempt := 1; ; attempt++ {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		err = s.links.Create(ctx, &db.LinkRequest{
			Token:              token,
			SourceMasterUserID: masterID,
			SourcePlatform:     platform,
			CreatedAt:          now,
			ExpiresAt:          now.Add(s.tokenTTL),
		})
		if err == nil {
			s.log.Info("link token issued", "master_user_id", masterID, "platform", platform)
			return token, nil
		}
		if !errors.Is(err, svcErr.ErrDuplicate) || attempt == mintAttempts {
			return "", err
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}

// LinkResult describes a completed merge.
type LinkResult struct {
	Survivor   *db.User
	MergedFrom uint64
}

// CompleteLink redeems token on behalf of (platform, platformUserID) and
// merges the token's source master into the redeeming side's master.
//
// Behavior:
//   - The token is consumed atomically before anything else is checked, so a
//     rejected token can never be replayed.
//   - Expired token, unknown token, second redemption and self-merge all fail
//     with ErrLinkTokenInvalid; Detail carries the reason.
//   - Merge: aliases of the source are repointed, points summed, badges
//     unioned, high score and streak maxed, game count summed; usage records,
//     phrase authors and proposal submitters are rewritten. The source master
//     is deleted. Everything commits in one transaction.
func (s *Service) CompleteLink(ctx context.Context, token string, platform db.Platform, platformUserID string, hint Profile) (*LinkResult, error) {
	var (
		result   *LinkResult
		rejected *svcErr.Error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		now := s.now()

		req, err := s.links.WithTx(tx).Consume(ctx, token, now)
		if err != nil {
			return err
		}
		if req.Expired(now) {
			rejected = svcErr.WithDetail(svcErr.CodeLinkTokenInvalid, repository.LinkExpired)
			return nil
		}

		dest, err := s.lookup(ctx, users, platform, platformUserID)
		if errors.Is(err, svcErr.ErrNotFound) {
			dest, err = s.create(ctx, users, platform, platformUserID, hint)
		}
		if err != nil {
			return err
		}
		if dest.ID == req.SourceMasterUserID {
			rejected = svcErr.WithDetail(svcErr.CodeLinkTokenInvalid, repository.LinkSelf)
			return nil
		}

		source, err := users.GetForUpdate(ctx, req.SourceMasterUserID)
		if errors.Is(err, svcErr.ErrNotFound) {
			rejected = svcErr.WithDetail(svcErr.CodeLinkTokenInvalid, repository.LinkUnknown)
			return nil
		}
		if err != nil {
			return err
		}
		into, err := users.GetForUpdate(ctx, dest.ID)
		if err != nil {
			return err
		}

		merged := Merge(into, source)
		if err := users.RepointAliases(ctx, source.ID, merged.ID, now); err != nil {
			return err
		}
		if err := s.usage.WithTx(tx).RewriteMaster(ctx, source.ID, merged.ID); err != nil {
			return err
		}
		if err := s.phrases.WithTx(tx).RewriteAuthor(ctx, source.ID, merged.ID); err != nil {
			return err
		}
		if err := s.proposals.WithTx(tx).RewriteSubmitter(ctx, source.ID, merged.ID); err != nil {
			return err
		}
		if err := users.Save(ctx, merged); err != nil {
			return err
		}
		if err := users.Delete(ctx, source.ID); err != nil {
			return err
		}

		result = &LinkResult{Survivor: merged, MergedFrom: source.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		s.log.Info("link token rejected", "platform", platform, "reason", rejected.Detail)
		return nil, rejected
	}

	s.log.Info("accounts merged", "survivor", result.Survivor.ID, "merged_from", result.MergedFrom)
	return result, nil
}

// Merge folds from into into and returns into. Neither row is written.
func Merge(into, from *db.User) *db.User {
	into.Points += from.Points
	for _, b := range from.Badges {
		if !slices.Contains(into.Badges, b) {
			into.Badges = append(into.Badges, b)
		}
	}
	into.GameStats += from.GameStats
	into.GameHighScore = max(into.GameHighScore, from.GameHighScore)
	into.GameStreak = max(into.GameStreak, from.GameStreak)
	if from.LastGameAt != nil && (into.LastGameAt == nil || from.LastGameAt.After(*into.LastGameAt)) {
		into.LastGameAt = from.LastGameAt
	}
	if from.LastSeenAt.After(into.LastSeenAt) {
		into.LastSeenAt = from.LastSeenAt
	}
	if into.DisplayName == "" {
		into.DisplayName = from.DisplayName
	}
	return into
}

// Erase removes every personal trace of a master: aliases and usage records
// are deleted, the row is kept flagged as erased for historical proposals.
func (s *Service) Erase(ctx context.Context, masterID uint64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		if err := users.DeleteAliases(ctx, masterID); err != nil {
			return err
		}
		if err := s.usage.WithTx(tx).DeleteByMaster(ctx, masterID); err != nil {
			return err
		}
		return users.MarkErased(ctx, masterID)
	})
	if err != nil {
		return err
	}
	s.log.Info("master user erased", "master_user_id", masterID)
	return nil
}

// PurgeLinkRequests deletes consumed and expired link requests.
func (s *Service) PurgeLinkRequests(ctx context.Context) (int64, error) {
	n, err := s.links.Purge(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("link requests purged", "count", n)
	}
	return n, nil
}
