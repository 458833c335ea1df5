package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

// Reasons reported with ErrLinkTokenInvalid.
const (
	LinkUnknown  = "unknown"
	LinkConsumed = "consumed"
	LinkExpired  = "expired"
	LinkSelf     = "self_merge"
)

// LinkRequestRepository stores one-shot account link tokens.
type LinkRequestRepository struct {
	db *gorm.DB
}

func NewLinkRequestRepository(database *gorm.DB) *LinkRequestRepository {
	return &LinkRequestRepository{db: database}
}

func (r *LinkRequestRepository) WithTx(tx *gorm.DB) *LinkRequestRepository {
	return &LinkRequestRepository{db: tx}
}

// Create stores a new request. A token collision surfaces as ErrDuplicate so
// the caller can mint another one.
func (r *LinkRequestRepository) Create(ctx context.Context, req *db.LinkRequest) error {
	return svcErr.FromGorm("link_requests.create", r.db.WithContext(ctx).Create(req).Error)
}

// Consume atomically marks the token as used and returns the request.
//
// Behavior:
//   - Exactly one caller wins the conditional update; every later call gets
//     ErrLinkTokenInvalid with detail "consumed".
//   - Unknown tokens get detail "unknown".
//   - Expiry is NOT checked here: an expired token is still burnt so it can
//     never be replayed, and the caller reports it as expired.
func (r *LinkRequestRepository) Consume(ctx context.Context, token string, now time.Time) (*db.LinkRequest, error) {
	res := r.db.WithContext(ctx).
		Model(&db.LinkRequest{}).
		Where("token = ? AND consumed_at IS NULL", token).
		Update("consumed_at", now)
	if res.Error != nil {
		return nil, svcErr.FromGorm("link_requests.consume", res.Error)
	}

	var req db.LinkRequest
	err := r.db.WithContext(ctx).First(&req, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.WithDetail(svcErr.CodeLinkTokenInvalid, LinkUnknown)
	}
	if err != nil {
		return nil, svcErr.FromGorm("link_requests.consume", err)
	}
	if res.RowsAffected == 0 {
		return nil, svcErr.WithDetail(svcErr.CodeLinkTokenInvalid, LinkConsumed)
	}
	return &req, nil
}

// Purge deletes consumed requests and requests that expired before now.
func (r *LinkRequestRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("consumed_at IS NOT NULL OR expires_at < ?", now).
		Delete(&db.LinkRequest{})
	return res.RowsAffected, svcErr.FromGorm("link_requests.purge", res.Error)
}
