package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

// UsageRepository is the append-only log of user actions.
type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(database *gorm.DB) *UsageRepository {
	return &UsageRepository{db: database}
}

func (r *UsageRepository) WithTx(tx *gorm.DB) *UsageRepository {
	return &UsageRepository{db: tx}
}

// UsageFilter narrows a count. Nil fields are not filtered on.
type UsageFilter struct {
	MasterUserID uint64
	Platform     *db.Platform
	Action       *db.Action
	Since        *time.Time
}

func (r *UsageRepository) Append(ctx context.Context, rec *db.UsageRecord) error {
	return svcErr.FromGorm("usage.append", r.db.WithContext(ctx).Create(rec).Error)
}

// Count returns how many records match f.
//
// Example:
//
//	repo.Count(ctx, UsageFilter{MasterUserID: 7}) // every action, every platform
func (r *UsageRepository) Count(ctx context.Context, f UsageFilter) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&db.UsageRecord{}).
		Where("master_user_id = ?", f.MasterUserID)
	if f.Platform != nil {
		q = q.Where("platform = ?", *f.Platform)
	}
	if f.Action != nil {
		q = q.Where("action = ?", *f.Action)
	}
	if f.Since != nil {
		q = q.Where("recorded_at >= ?", *f.Since)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, svcErr.FromGorm("usage.count", err)
	}
	return n, nil
}

// CountByAction groups the records of a master by action.
func (r *UsageRepository) CountByAction(ctx context.Context, masterID uint64) (map[db.Action]int64, error) {
	var rows []struct {
		Action db.Action
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.UsageRecord{}).
		Select("action, COUNT(*) AS n").
		Where("master_user_id = ?", masterID).
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, svcErr.FromGorm("usage.count_by_action", err)
	}

	out := make(map[db.Action]int64, len(rows))
	for _, row := range rows {
		out[row.Action] = row.N
	}
	return out, nil
}

// RewriteMaster attributes every record of from to to.
func (r *UsageRepository) RewriteMaster(ctx context.Context, from, to uint64) error {
	err := r.db.WithContext(ctx).
		Model(&db.UsageRecord{}).
		Where("master_user_id = ?", from).
		Update("master_user_id", to).Error
	return svcErr.FromGorm("usage.rewrite_master", err)
}

func (r *UsageRepository) DeleteByMaster(ctx context.Context, masterID uint64) error {
	err := r.db.WithContext(ctx).Where("master_user_id = ?", masterID).Delete(&db.UsageRecord{}).Error
	return svcErr.FromGorm("usage.delete_by_master", err)
}
