package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

// UserRepository provides data access methods for master users and the
// platform aliases pointing at them.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// WithTx returns a copy of the repository bound to tx.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Get(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, svcErr.FromGorm("users.get", err)
	}
	return &u, nil
}

// GetForUpdate loads a user holding a row lock where the dialect supports it.
// Used by the merge transaction so both sides are read consistently.
func (r *UserRepository) GetForUpdate(ctx context.Context, id uint64) (*db.User, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var u db.User
	if err := q.First(&u, "id = ?", id).Error; err != nil {
		return nil, svcErr.FromGorm("users.get_for_update", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return svcErr.FromGorm("users.create", r.db.WithContext(ctx).Create(u).Error)
}

// Save writes every column of u.
func (r *UserRepository) Save(ctx context.Context, u *db.User) error {
	return svcErr.FromGorm("users.save", r.db.WithContext(ctx).Save(u).Error)
}

func (r *UserRepository) Delete(ctx context.Context, id uint64) error {
	return svcErr.FromGorm("users.delete", r.db.WithContext(ctx).Delete(&db.User{}, "id = ?", id).Error)
}

// AddPoints increments points in place so concurrent writers never lose an update.
//
// Behavior:
//   - delta must be >= 0; points never go negative.
//   - Missing user → NotFound.
func (r *UserRepository) AddPoints(ctx context.Context, id uint64, delta int64) error {
	if delta < 0 {
		return svcErr.InvalidArgument("points delta must not be negative")
	}
	if delta == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Update("points", gorm.Expr("points + ?", delta))
	if res.Error != nil {
		return svcErr.FromGorm("users.add_points", res.Error)
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetBadges(ctx context.Context, id uint64, badges []string) error {
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Update("badges", datatypes.JSONSlice[string](badges)).Error
	return svcErr.FromGorm("users.set_badges", err)
}

func (r *UserRepository) Touch(ctx context.Context, id uint64, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
	return svcErr.FromGorm("users.touch", err)
}

// SaveGame writes the game columns of u and adds pointsDelta in the same statement.
func (r *UserRepository) SaveGame(ctx context.Context, u *db.User, pointsDelta int64) error {
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"game_stats":      u.GameStats,
			"game_high_score": u.GameHighScore,
			"game_streak":     u.GameStreak,
			"last_game_at":    u.LastGameAt,
			"points":          gorm.Expr("points + ?", pointsDelta),
		}).Error
	return svcErr.FromGorm("users.save_game", err)
}

// MarkErased flags the master as erased and blanks its display name. The row
// itself stays for historical proposals.
func (r *UserRepository) MarkErased(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"gdpr_erased": true, "display_name": ""})
	if res.Error != nil {
		return svcErr.FromGorm("users.mark_erased", res.Error)
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrNotFound
	}
	return nil
}

// FindAlias looks up the alias of a platform identity.
func (r *UserRepository) FindAlias(ctx context.Context, platform db.Platform, platformUserID string) (*db.Alias, error) {
	var a db.Alias
	err := r.db.WithContext(ctx).
		First(&a, "platform = ? AND platform_user_id = ?", platform, platformUserID).Error
	if err != nil {
		return nil, svcErr.FromGorm("aliases.find", err)
	}
	return &a, nil
}

func (r *UserRepository) CreateAlias(ctx context.Context, a *db.Alias) error {
	return svcErr.FromGorm("aliases.create", r.db.WithContext(ctx).Create(a).Error)
}

// PlatformUserIDs returns the ids on platform of the given masters.
func (r *UserRepository) PlatformUserIDs(ctx context.Context, platform db.Platform, masterIDs []uint64) ([]string, error) {
	if len(masterIDs) == 0 {
		return nil, nil
	}
	var out []string
	err := r.db.WithContext(ctx).
		Model(&db.Alias{}).
		Where("platform = ? AND master_user_id IN ?", platform, masterIDs).
		Order("platform_user_id").
		Pluck("platform_user_id", &out).Error
	return out, svcErr.FromGorm("aliases.platform_user_ids", err)
}

func (r *UserRepository) ListAliases(ctx context.Context, masterID uint64) ([]db.Alias, error) {
	var out []db.Alias
	err := r.db.WithContext(ctx).
		Where("master_user_id = ?", masterID).
		Order("platform, platform_user_id").
		Find(&out).Error
	return out, svcErr.FromGorm("aliases.list", err)
}

// CountPlatforms returns how many distinct platforms the master is linked on.
func (r *UserRepository) CountPlatforms(ctx context.Context, masterID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Alias{}).
		Where("master_user_id = ?", masterID).
		Distinct("platform").
		Count(&n).Error
	return n, svcErr.FromGorm("aliases.count_platforms", err)
}

// RepointAliases moves every alias of from onto to.
func (r *UserRepository) RepointAliases(ctx context.Context, from, to uint64, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&db.Alias{}).
		Where("master_user_id = ?", from).
		Updates(map[string]any{"master_user_id": to, "linked_at": at}).Error
	return svcErr.FromGorm("aliases.repoint", err)
}

func (r *UserRepository) DeleteAliases(ctx context.Context, masterID uint64) error {
	err := r.db.WithContext(ctx).Where("master_user_id = ?", masterID).Delete(&db.Alias{}).Error
	return svcErr.FromGorm("aliases.delete", err)
}
