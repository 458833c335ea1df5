package repository

import (
	"context"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

// ProposalRepository provides data access for proposals. Every mutation after
// creation goes through Save, which is guarded by the version counter.
type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(database *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: database}
}

func (r *ProposalRepository) WithTx(tx *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: tx}
}

func (r *ProposalRepository) Create(ctx context.Context, p *db.Proposal) error {
	return svcErr.FromGorm("proposals.create", r.db.WithContext(ctx).Create(p).Error)
}

func (r *ProposalRepository) Get(ctx context.Context, id string) (*db.Proposal, error) {
	var p db.Proposal
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, svcErr.FromGorm("proposals.get", err)
	}
	return &p, nil
}

// Save writes the mutable state of p if nobody else wrote it since it was loaded.
//
// Behavior:
//   - UPDATE ... WHERE id = ? AND version = ?; on success p.Version is bumped.
//   - Zero rows affected → ErrConflict; the caller reloads and retries.
func (r *ProposalRepository) Save(ctx context.Context, p *db.Proposal) error {
	res := r.db.WithContext(ctx).
		Model(&db.Proposal{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"liked_by":    p.LikedBy,
			"disliked_by": p.DislikedBy,
			"status":      p.Status,
			"closed_at":   p.ClosedAt,
			"version":     p.Version + 1,
		})
	if res.Error != nil {
		return svcErr.FromGorm("proposals.save", res.Error)
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrConflict
	}
	p.Version++
	return nil
}

// ListOpenCreatedBefore returns open proposals older than cutoff, oldest first.
// Legacy rows without a status count as open unless closed_at is set.
func (r *ProposalRepository) ListOpenCreatedBefore(ctx context.Context, cutoff time.Time) ([]db.Proposal, error) {
	var out []db.Proposal
	err := r.db.WithContext(ctx).
		Where("(status = ? OR ((status IS NULL OR status = '') AND closed_at IS NULL))", db.StatusOpen).
		Where("created_at < ?", cutoff).
		Order("created_at").
		Find(&out).Error
	return out, svcErr.FromGorm("proposals.list_open_before", err)
}

// RewriteSubmitter moves the submitter of every proposal of from to to.
func (r *ProposalRepository) RewriteSubmitter(ctx context.Context, from, to uint64) error {
	err := r.db.WithContext(ctx).
		Model(&db.Proposal{}).
		Where("submitter_user_id = ?", from).
		Update("submitter_user_id", to).Error
	return svcErr.FromGorm("proposals.rewrite_submitter", err)
}

// Participants returns the distinct master ids that submitted or voted on any
// proposal, ascending.
func (r *ProposalRepository) Participants(ctx context.Context) ([]uint64, error) {
	var rows []db.Proposal
	err := r.db.WithContext(ctx).
		Select("submitter_user_id", "liked_by", "disliked_by").
		Find(&rows).Error
	if err != nil {
		return nil, svcErr.FromGorm("proposals.participants", err)
	}

	var ids []uint64
	for _, p := range rows {
		ids = append(ids, p.SubmitterUserID)
		ids = append(ids, p.LikedBy...)
		ids = append(ids, p.DislikedBy...)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
