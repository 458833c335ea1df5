package curators

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/repository"
)

// Participants offers everyone who ever submitted or voted on a proposal as
// a curator candidate.
type Participants struct {
	proposals *repository.ProposalRepository
	users     *repository.UserRepository
}

func NewParticipants(database *gorm.DB) *Participants {
	return &Participants{
		proposals: repository.NewProposalRepository(database),
		users:     repository.NewUserRepository(database),
	}
}

func (p *Participants) CandidateIDs(ctx context.Context, platform db.Platform) ([]string, error) {
	masters, err := p.proposals.Participants(ctx)
	if err != nil {
		return nil, err
	}
	return p.users.PlatformUserIDs(ctx, platform, masters)
}
