// Package proposals implements the phrase proposal state machine:
// open -> {approved, rejected, expired}, driven by curator votes, admin
// decisions and the expiry sweep. Approval promotes the proposal into the
// phrase catalog.
package proposals

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/repository"
	"github.com/oggyb/cunhao-core/internal/service/curators"
	"github.com/oggyb/cunhao-core/internal/service/notify"
	"github.com/oggyb/cunhao-core/internal/utils/retry"
	"github.com/oggyb/cunhao-core/internal/utils/textnorm"
)

// Points granted to the submitter.
const (
	PointsPerVote     = 1
	PointsForApproval = 10
)

const (
	conflictAttempts = 5
	storageAttempts  = 3
)

// CuratorSet is the part of the curator directory the state machine needs.
type CuratorSet interface {
	ActiveCurators(ctx context.Context) ([]uint64, error)
}

type Config struct {
	OwnerMasterUserID uint64
	ExpiryWindow      time.Duration
	// Blacklist holds display names that may not submit proposals.
	Blacklist []string
	OpTimeout time.Duration
	Now       func() time.Time
	// Backoff is the base delay of the OCC retry loop.
	Backoff time.Duration
}

type Service struct {
	db        *gorm.DB
	proposals *repository.ProposalRepository
	phrases   *repository.PhraseRepository
	users     *repository.UserRepository
	curators  CuratorSet
	notify    *notify.Dispatcher
	cfg       Config
	log       *slog.Logger
}

func NewService(database *gorm.DB, curatorSet CuratorSet, dispatcher *notify.Dispatcher, log *slog.Logger, cfg Config) *Service {
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 30 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 20 * time.Millisecond
	}
	return &Service{
		db:        database,
		proposals: repository.NewProposalRepository(database),
		phrases:   repository.NewPhraseRepository(database),
		users:     repository.NewUserRepository(database),
		curators:  curatorSet,
		notify:    dispatcher,
		cfg:       cfg,
		log:       log,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// SubmitInput is a new proposal as received by an adapter.
type SubmitInput struct {
	SubmitterUserID uint64
	Platform        db.Platform
	Kind            db.Kind
	Text            string
	ChatID          string
	MessageID       string
}

// Submit validates and stores a new open proposal and announces it to the
// curator chat.
//
// Behavior:
//   - Text is trimmed and whitespace-collapsed; empty text → InvalidArgument.
//   - Submitter display name on the blacklist → SubmitterBlacklisted.
//   - (kind, normalized text) already in the catalog → DuplicatePhrase,
//     nothing is persisted.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*db.Proposal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if in.Kind != db.KindShort && in.Kind != db.KindLong {
		return nil, svcErr.InvalidArgument("unknown phrase kind")
	}
	text := textnorm.Clean(in.Text)
	if text == "" {
		return nil, svcErr.InvalidArgument("phrase text is empty")
	}

	submitter, err := s.users.Get(ctx, in.SubmitterUserID)
	if err != nil {
		return nil, err
	}
	if s.blacklisted(submitter.DisplayName) {
		s.log.Info("blacklisted submitter", "master_user_id", submitter.ID)
		return nil, svcErr.ErrSubmitterBlacklisted
	}

	normalized := textnorm.Normalize(text)
	exists, err := s.phrases.ExistsNormalized(ctx, in.Kind, normalized)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, svcErr.ErrDuplicatePhrase
	}

	p := &db.Proposal{
		ID:                 uuid.NewString(),
		Kind:               in.Kind,
		Text:               text,
		Normalized:         normalized,
		SubmitterUserID:    submitter.ID,
		SubmitterPlatform:  in.Platform,
		SubmitterChatID:    in.ChatID,
		SubmitterMessageID: in.MessageID,
		LikedBy:            datatypes.JSONSlice[uint64]{},
		DislikedBy:         datatypes.JSONSlice[uint64]{},
		Status:             db.StatusOpen,
		CreatedAt:          s.cfg.Now(),
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info("proposal submitted", "proposal_id", p.ID, "kind", p.Kind, "submitter", p.SubmitterUserID)
	s.emit(ctx, p, notify.ProposalOpened, 0, notify.CuratorChat())
	return p, nil
}

func (s *Service) blacklisted(name string) bool {
	return slices.ContainsFunc(s.cfg.Blacklist, func(b string) bool {
		return textnorm.Equal(b, name)
	})
}

// Get returns a proposal by id.
func (s *Service) Get(ctx context.Context, id string) (*db.Proposal, error) {
	return s.proposals.Get(ctx, id)
}

// VoteOutcome is the state of the proposal after a vote was applied.
type VoteOutcome struct {
	Proposal  *db.Proposal
	Likes     int
	Dislikes  int
	Threshold int

	promotionFailed bool
}

// Closed reports whether the vote closed the proposal.
func (o *VoteOutcome) Closed() bool { return o.Proposal.Status.Terminal() }

// Vote records a curator vote and settles the proposal when the live
// threshold is reached.
//
// Behavior:
//   - Missing proposal → NotFound; closed → AlreadyClosed; voter already in
//     either vote set → AlreadyVoted; voter outside the curator set → NotCurator.
//   - The vote, the submitter's point and any resulting transition are
//     written with one version-checked update, retried on Conflict up to 5
//     times and on StorageUnavailable up to 3 times.
//   - Approval is checked before rejection.
//   - If promotion hits an existing phrase the vote is kept, the proposal
//     stays open and PromotionFailed is returned alongside the outcome.
func (s *Service) Vote(ctx context.Context, proposalID string, voterID uint64, vote db.Vote) (*VoteOutcome, error) {
	if vote != db.VoteLike && vote != db.VoteDislike {
		return nil, svcErr.InvalidArgument("unknown vote")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out *VoteOutcome
	err := retry.Do(ctx, s.policy(), func(attempt int) error {
		var err error
		out, err = s.applyVote(ctx, proposalID, voterID, vote)
		if svcErr.CodeOf(err) == svcErr.CodeConflict {
			s.log.Debug("vote conflict, reloading", "proposal_id", proposalID, "attempt", attempt)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	p := out.Proposal
	switch {
	case out.promotionFailed:
		s.log.Error("proposal promotion failed, phrase already in catalog", "proposal_id", p.ID)
		s.emitTally(ctx, out)
		return out, svcErr.ErrPromotionFailed
	case p.Status == db.StatusApproved:
		s.log.Info("proposal approved", "proposal_id", p.ID, "likes", out.Likes, "threshold", out.Threshold)
		s.emit(ctx, p, notify.ProposalApproved, out.Threshold, notify.SubmitterChat(p), notify.CuratorChat())
	case p.Status == db.StatusRejected:
		s.log.Info("proposal rejected", "proposal_id", p.ID, "dislikes", out.Dislikes, "threshold", out.Threshold)
		s.emit(ctx, p, notify.ProposalRejected, out.Threshold, notify.SubmitterChat(p), notify.CuratorChat())
	default:
		s.emitTally(ctx, out)
	}
	return out, nil
}

// policy retries Conflict up to conflictAttempts and StorageUnavailable up
// to storageAttempts within the same loop.
func (s *Service) policy() retry.Policy {
	storageFailures := 0
	return retry.Policy{
		Attempts: conflictAttempts,
		Base:     s.cfg.Backoff,
		Max:      20 * s.cfg.Backoff,
		Retryable: func(err error) bool {
			switch svcErr.CodeOf(err) {
			case svcErr.CodeConflict:
				return true
			case svcErr.CodeStorageUnavailable:
				storageFailures++
				return storageFailures < storageAttempts
			}
			return false
		},
	}
}

// applyVote is one read-modify-write round.
func (s *Service) applyVote(ctx context.Context, id string, voterID uint64, vote db.Vote) (*VoteOutcome, error) {
	p, err := s.proposals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, svcErr.ErrAlreadyClosed
	}
	if p.HasVoted(voterID) {
		return nil, svcErr.ErrAlreadyVoted
	}

	active, err := s.curators.ActiveCurators(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(active, voterID) {
		return nil, svcErr.ErrNotCurator
	}
	threshold := curators.Threshold(len(active))

	if vote == db.VoteLike {
		p.LikedBy = append(p.LikedBy, voterID)
	} else {
		p.DislikedBy = append(p.DislikedBy, voterID)
	}
	out := &VoteOutcome{Proposal: p, Likes: len(p.LikedBy), Dislikes: len(p.DislikedBy), Threshold: threshold}

	now := s.cfg.Now()
	switch {
	case out.Likes >= threshold:
		p.Status, p.ClosedAt = db.StatusApproved, &now
		err := s.commit(ctx, p, PointsPerVote+PointsForApproval, true)
		if !errors.Is(err, svcErr.ErrPromotionFailed) {
			return out, err
		}
		// keep the vote, leave the proposal open
		p.Status, p.ClosedAt = db.StatusOpen, nil
		if err := s.commit(ctx, p, PointsPerVote, false); err != nil {
			return nil, err
		}
		out.promotionFailed = true
		return out, nil
	case out.Dislikes >= threshold:
		p.Status, p.ClosedAt = db.StatusRejected, &now
	}
	if err := s.commit(ctx, p, PointsPerVote, false); err != nil {
		return nil, err
	}
	return out, nil
}

// commit persists p in one transaction together with the submitter's points
// and, when promote is set, the catalog phrase. p.Version is only advanced
// when the transaction commits.
func (s *Service) commit(ctx context.Context, p *db.Proposal, points int64, promote bool) error {
	version := p.Version
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.proposals.WithTx(tx).Save(ctx, p); err != nil {
			return err
		}
		if promote {
			if err := s.promote(ctx, tx, p); err != nil {
				return err
			}
		}
		if points > 0 {
			err := s.users.WithTx(tx).AddPoints(ctx, p.SubmitterUserID, points)
			if err != nil && !errors.Is(err, svcErr.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.Version = version
	}
	return err
}

// promote creates the catalog phrase of an approved proposal. An existing
// phrase with the same key or normalized text fails the promotion.
func (s *Service) promote(ctx context.Context, tx *gorm.DB, p *db.Proposal) error {
	phrases := s.phrases.WithTx(tx)
	exists, err := phrases.ExistsNormalized(ctx, p.Kind, p.Normalized)
	if err != nil {
		return err
	}
	if exists {
		return svcErr.ErrPromotionFailed
	}

	author, proposalID := p.SubmitterUserID, p.ID
	err = phrases.Create(ctx, &db.Phrase{
		Kind:         p.Kind,
		Text:         p.Text,
		Normalized:   p.Normalized,
		AuthorUserID: &author,
		ProposalID:   &proposalID,
		CreatedAt:    s.cfg.Now(),
	})
	if errors.Is(err, svcErr.ErrDuplicate) {
		return svcErr.New(svcErr.CodePromotionFailed, err)
	}
	return err
}

// AdminApprove approves an open proposal regardless of its tally.
// Only the configured owner may call it.
func (s *Service) AdminApprove(ctx context.Context, actorID uint64, proposalID string) (*db.Proposal, error) {
	return s.decide(ctx, actorID, proposalID, db.StatusApproved)
}

// AdminReject rejects an open proposal regardless of its tally.
// Only the configured owner may call it.
func (s *Service) AdminReject(ctx context.Context, actorID uint64, proposalID string) (*db.Proposal, error) {
	return s.decide(ctx, actorID, proposalID, db.StatusRejected)
}

// decide is the unconditional admin transition. Blacklist and tally are not
// consulted; only the owner check and the closed state are.
func (s *Service) decide(ctx context.Context, actorID uint64, proposalID string, status db.ProposalStatus) (*db.Proposal, error) {
	if s.cfg.OwnerMasterUserID == 0 || actorID != s.cfg.OwnerMasterUserID {
		return nil, svcErr.ErrNotOwner
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p *db.Proposal
	err := retry.Do(ctx, s.policy(), func(int) error {
		var err error
		if p, err = s.proposals.Get(ctx, proposalID); err != nil {
			return err
		}
		if p.Status.Terminal() {
			return svcErr.ErrAlreadyClosed
		}
		now := s.cfg.Now()
		p.Status, p.ClosedAt = status, &now
		if status == db.StatusApproved {
			return s.commit(ctx, p, PointsForApproval, true)
		}
		return s.commit(ctx, p, 0, false)
	})
	if err != nil {
		return nil, err
	}

	ev := notify.ProposalRejected
	if status == db.StatusApproved {
		ev = notify.ProposalApproved
	}
	s.log.Info("proposal decided by owner", "proposal_id", p.ID, "status", p.Status)
	s.emit(ctx, p, ev, 0, notify.SubmitterChat(p), notify.CuratorChat())
	return p, nil
}

// Expire closes every open proposal created before now minus the expiry
// window. Nothing is promoted. Proposals modified concurrently are left for
// the next sweep. It returns how many proposals were expired.
func (s *Service) Expire(ctx context.Context, now time.Time) (int, error) {
	open, err := s.proposals.ListOpenCreatedBefore(ctx, now.Add(-s.cfg.ExpiryWindow))
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range open {
		p := &open[i]
		closedAt := now
		p.Status, p.ClosedAt = db.StatusExpired, &closedAt
		if err := s.proposals.Save(ctx, p); err != nil {
			if errors.Is(err, svcErr.ErrConflict) {
				s.log.Debug("proposal changed during expiry sweep", "proposal_id", p.ID)
				continue
			}
			return expired, err
		}
		expired++
		s.emit(ctx, p, notify.ProposalExpired, 0, notify.SubmitterChat(p), notify.CuratorChat())
	}
	if expired > 0 {
		s.log.Info("proposals expired", "count", expired)
	}
	return expired, nil
}

func (s *Service) emitTally(ctx context.Context, out *VoteOutcome) {
	s.emit(ctx, out.Proposal, notify.ProposalVoteRecorded, out.Threshold, notify.CuratorChat())
}

func (s *Service) emit(ctx context.Context, p *db.Proposal, t notify.EventType, threshold int, to ...notify.Addressee) {
	if s.notify == nil {
		return
	}
	s.notify.Emit(ctx, notify.Event{
		Type:         t,
		ProposalID:   p.ID,
		Kind:         p.Kind,
		Text:         p.Text,
		Likes:        len(p.LikedBy),
		Dislikes:     len(p.DislikedBy),
		Threshold:    threshold,
		MasterUserID: p.SubmitterUserID,
	}, to...)
}
