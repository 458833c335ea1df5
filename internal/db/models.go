package db

import (
	"slices"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the master identity holding points, badges and game stats.
// Platform identities point at it through Alias rows.
type User struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	DisplayName   string `gorm:"size:128;not null"`
	Points        int64  `gorm:"not null;default:0"`
	Badges        datatypes.JSONSlice[string]
	Platform      Platform `gorm:"size:16;not null"`
	GDPRErased    bool     `gorm:"not null;default:false;index"`
	GameStats     int      `gorm:"not null;default:0"`
	GameHighScore int      `gorm:"not null;default:0"`
	GameStreak    int      `gorm:"not null;default:0"`
	LastGameAt    *time.Time
	LastSeenAt    time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (u *User) HasBadge(code string) bool { return slices.Contains(u.Badges, code) }

// Alias maps one platform identity to its master user.
//
// Composite PK: (Platform, PlatformUserID)
//   - A platform identity can only ever point at a single master.
//
// Indexes:
//   - idx_alias_master(master_user_id) for merge repointing and erase cascades.
type Alias struct {
	Platform       Platform  `gorm:"primaryKey;size:16"`
	PlatformUserID string    `gorm:"primaryKey;size:64"`
	MasterUserID   uint64    `gorm:"not null;index:idx_alias_master"`
	LinkedAt       time.Time `gorm:"not null"`
}

// LinkRequest is a one-shot token used to merge two master users.
// ConsumedAt is set by the atomic consume; consumed rows are purged later.
type LinkRequest struct {
	Token              string    `gorm:"primaryKey;size:16"`
	SourceMasterUserID uint64    `gorm:"not null;index"`
	SourcePlatform     Platform  `gorm:"size:16;not null"`
	CreatedAt          time.Time `gorm:"not null"`
	ExpiresAt          time.Time `gorm:"not null;index"`
	ConsumedAt         *time.Time
}

func (l *LinkRequest) Expired(now time.Time) bool { return !now.Before(l.ExpiresAt) }

// UsageRecord is an append-only log entry of a user action.
//
// Indexes:
//   - idx_usage_master_platform_action(master_user_id, platform, action)
//     serves every count filter combination used by the badge engine.
type UsageRecord struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	MasterUserID uint64    `gorm:"not null;index:idx_usage_master_platform_action,priority:1;index:idx_usage_master_ts,priority:1"`
	Platform     Platform  `gorm:"size:16;not null;index:idx_usage_master_platform_action,priority:2"`
	Action       Action    `gorm:"size:16;not null;index:idx_usage_master_platform_action,priority:3"`
	PhraseID     *string   `gorm:"size:600"`
	RecordedAt   time.Time `gorm:"not null;index:idx_usage_master_ts,priority:2"`
	Metadata     datatypes.JSONMap
}

// Phrase is a catalog entry, keyed by (kind, text).
type Phrase struct {
	Kind         Kind    `gorm:"primaryKey;size:8;index:idx_phrase_kind_norm,priority:1"`
	Text         string  `gorm:"primaryKey;size:512"`
	Normalized   string  `gorm:"size:512;not null;index:idx_phrase_kind_norm,priority:2"`
	AuthorUserID *uint64 `gorm:"index"`
	ProposalID   *string `gorm:"size:36;index"`
	UsageCount   int64   `gorm:"not null;default:0"`
	CreatedAt    time.Time
}

// ID is the stable phrase identifier stored in usage records.
func (p *Phrase) ID() string { return PhraseID(p.Kind, p.Text) }

// PhraseID joins kind and text into the identifier used by usage records.
func PhraseID(kind Kind, text string) string { return string(kind) + ":" + text }

// ParsePhraseID splits an identifier built by PhraseID.
func ParsePhraseID(id string) (Kind, string, bool) {
	k, text, ok := strings.Cut(id, ":")
	if !ok || text == "" {
		return "", "", false
	}
	kind, err := ParseKind(k)
	if err != nil {
		return "", "", false
	}
	return kind, text, true
}

// Proposal is a candidate phrase collecting curator votes.
//
// Version is the optimistic concurrency counter; every write goes through
// "UPDATE ... WHERE id = ? AND version = ?".
type Proposal struct {
	ID                 string   `gorm:"primaryKey;size:36"`
	Kind               Kind     `gorm:"size:8;not null;index:idx_proposal_kind_norm,priority:1"`
	Text               string   `gorm:"size:512;not null"`
	Normalized         string   `gorm:"size:512;not null;index:idx_proposal_kind_norm,priority:2"`
	SubmitterUserID    uint64   `gorm:"not null;index"`
	SubmitterPlatform  Platform `gorm:"size:16"`
	SubmitterChatID    string   `gorm:"size:64"`
	SubmitterMessageID string   `gorm:"size:64"`
	LikedBy            datatypes.JSONSlice[uint64]
	DislikedBy         datatypes.JSONSlice[uint64]
	Status             ProposalStatus `gorm:"size:16;index:idx_proposal_status_created,priority:1"`
	CreatedAt          time.Time      `gorm:"index:idx_proposal_status_created,priority:2"`
	ClosedAt           *time.Time
	Version            int64 `gorm:"not null;default:0"`
}

// AfterFind maps rows written by older deployments, which carried no status,
// onto the state machine: closed when closed_at is set, open otherwise.
func (p *Proposal) AfterFind(tx *gorm.DB) error {
	if p.Status == "" {
		if p.ClosedAt != nil {
			p.Status = StatusExpired
		} else {
			p.Status = StatusOpen
		}
	}
	return nil
}

func (p *Proposal) HasVoted(userID uint64) bool {
	return slices.Contains(p.LikedBy, userID) || slices.Contains(p.DislikedBy, userID)
}

// AllModels lists every table owned by the core, in migration order.
func AllModels() []any {
	return []any{&User{}, &Alias{}, &LinkRequest{}, &UsageRecord{}, &Phrase{}, &Proposal{}}
}
