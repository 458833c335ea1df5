// Package phrases is the read side of the phrase catalog used by adapters
// for lookups and browsing.
package phrases

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	svcErr "github.com/oggyb/cunhao-core/internal/errors"
	"github.com/oggyb/cunhao-core/internal/repository"
	"github.com/oggyb/cunhao-core/internal/utils/textnorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo *repository.PhraseRepository
	log  *slog.Logger
}

func NewService(database *gorm.DB, log *slog.Logger) *Service {
	return &Service{repo: repository.NewPhraseRepository(database), log: log}
}

// Find returns the catalog phrase of kind matching text after normalization,
// so "  FÍGURA " finds "figura".
func (s *Service) Find(ctx context.Context, kind db.Kind, text string) (*db.Phrase, error) {
	norm := textnorm.Normalize(text)
	if norm == "" {
		return nil, svcErr.InvalidArgument("phrase text is empty")
	}
	return s.repo.FindNormalized(ctx, kind, norm)
}

// ListQuery filters List. Every field is optional.
type ListQuery struct {
	Kind  *db.Kind
	Query string
	Token *string
	Limit int
}

// Page is one page of phrases. NextToken is nil on the last page.
type Page struct {
	Phrases   []db.Phrase
	NextToken *string
}

// List returns phrases ordered by (kind, text).
//
// Behavior:
//   - Query is normalized and matched as a substring of the normalized text.
//   - Limit defaults to 20 and is capped at 100.
//   - Supports cursor-based pagination via Token; a malformed token → InvalidArgument.
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	phrases, next, err := s.repo.List(ctx, repository.PhraseFilter{
		Kind:  q.Kind,
		Query: textnorm.Normalize(q.Query),
		Token: q.Token,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("phrases listed", "count", len(phrases), "has_next", next != nil)
	return &Page{Phrases: phrases, NextToken: next}, nil
}
