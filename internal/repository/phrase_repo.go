package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/utils/pagination"
)

// PhraseRepository provides access to the canonical phrase catalog.
type PhraseRepository struct {
	db *gorm.DB
}

func NewPhraseRepository(database *gorm.DB) *PhraseRepository {
	return &PhraseRepository{db: database}
}

func (r *PhraseRepository) WithTx(tx *gorm.DB) *PhraseRepository {
	return &PhraseRepository{db: tx}
}

// PhraseFilter drives List. Query matches as a substring of the normalized text.
type PhraseFilter struct {
	Kind  *db.Kind
	Query string
	Token *string
	Limit int
}

// Create inserts p. The (kind, text) primary key turns a second promotion of
// the same phrase into ErrDuplicate.
func (r *PhraseRepository) Create(ctx context.Context, p *db.Phrase) error {
	return svcErr.FromGorm("phrases.create", r.db.WithContext(ctx).Create(p).Error)
}

func (r *PhraseRepository) Get(ctx context.Context, kind db.Kind, text string) (*db.Phrase, error) {
	var p db.Phrase
	if err := r.db.WithContext(ctx).First(&p, "kind = ? AND text = ?", kind, text).Error; err != nil {
		return nil, svcErr.FromGorm("phrases.get", err)
	}
	return &p, nil
}

// FindNormalized returns the phrase of kind whose normalized text equals norm.
func (r *PhraseRepository) FindNormalized(ctx context.Context, kind db.Kind, norm string) (*db.Phrase, error) {
	var p db.Phrase
	err := r.db.WithContext(ctx).
		Where("kind = ? AND normalized = ?", kind, norm).
		Order("text").
		First(&p).Error
	if err != nil {
		return nil, svcErr.FromGorm("phrases.find_normalized", err)
	}
	return &p, nil
}

func (r *PhraseRepository) ExistsNormalized(ctx context.Context, kind db.Kind, norm string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Phrase{}).
		Where("kind = ? AND normalized = ?", kind, norm).
		Count(&n).Error
	if err != nil {
		return false, svcErr.FromGorm("phrases.exists_normalized", err)
	}
	return n > 0, nil
}

// List returns phrases ordered by (kind, text).
//
// Behavior:
//   - Kind and Query are optional filters.
//   - Supports cursor-based pagination via Token; the next token is nil on the last page.
func (r *PhraseRepository) List(ctx context.Context, f PhraseFilter) ([]db.Phrase, *string, error) {
	cursor, err := pagination.Decode(getString(f.Token))
	if err != nil {
		return nil, nil, svcErr.InvalidArgument(err.Error())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	query := r.db.WithContext(ctx).
		Model(&db.Phrase{}).
		Order("kind, text").
		Limit(limit + 1)
	if f.Kind != nil {
		query = query.Where("kind = ?", *f.Kind)
	}
	if f.Query != "" {
		query = query.Where("normalized LIKE ? ESCAPE '!'", "%"+escapeLike(f.Query)+"%")
	}

	// apply cursor
	if !cursor.IsZero() {
		query = query.Where("(kind > ? OR (kind = ? AND text > ?))", cursor.Kind, cursor.Kind, cursor.Text)
	}

	var phrases []db.Phrase
	if err := query.Find(&phrases).Error; err != nil {
		return nil, nil, svcErr.FromGorm("phrases.list", err)
	}

	var nextToken *string
	if len(phrases) > limit {
		last := phrases[limit-1]
		token, err := pagination.Encode(pagination.Cursor{Kind: string(last.Kind), Text: last.Text})
		if err != nil {
			return nil, nil, err
		}
		nextToken = &token
		phrases = phrases[:limit]
	}
	return phrases, nextToken, nil
}

// CountByAuthor returns how many catalog phrases the master authored.
func (r *PhraseRepository) CountByAuthor(ctx context.Context, masterID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Phrase{}).
		Where("author_user_id = ?", masterID).
		Count(&n).Error
	return n, svcErr.FromGorm("phrases.count_by_author", err)
}

// IncrementUsage bumps usage_count. Unknown phrases are ignored.
func (r *PhraseRepository) IncrementUsage(ctx context.Context, kind db.Kind, text string) error {
	err := r.db.WithContext(ctx).
		Model(&db.Phrase{}).
		Where("kind = ? AND text = ?", kind, text).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
	return svcErr.FromGorm("phrases.increment_usage", err)
}

// RewriteAuthor moves the author back-link of every phrase of from to to.
func (r *PhraseRepository) RewriteAuthor(ctx context.Context, from, to uint64) error {
	err := r.db.WithContext(ctx).
		Model(&db.Phrase{}).
		Where("author_user_id = ?", from).
		Update("author_user_id", to).Error
	return svcErr.FromGorm("phrases.rewrite_author", err)
}

// likeEscaper makes user input literal inside a LIKE pattern using '!' as the
// escape character, which needs no quoting in any supported dialect.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
