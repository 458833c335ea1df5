// Package notify is the outbound notification port of the core. The core
// only describes what happened and who should hear about it; transport
// adapters render and deliver.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/oggyb/cunhao-core/internal/db"
)

type EventType string

const (
	ProposalOpened       EventType = "proposal_opened"
	ProposalApproved     EventType = "proposal_approved"
	ProposalRejected     EventType = "proposal_rejected"
	ProposalVoteRecorded EventType = "proposal_vote_recorded"
	ProposalExpired      EventType = "proposal_expired"
	BadgeAwarded         EventType = "badge_awarded"
)

// BadgeRef is the badge as carried by a BadgeAwarded event.
type BadgeRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Event is an outbound notification. Only the fields relevant to Type are set.
type Event struct {
	Type       EventType `json:"type"`
	ProposalID string    `json:"proposal_id,omitempty"`
	Kind       db.Kind   `json:"kind,omitempty"`
	Text       string    `json:"text,omitempty"`

	// vote tally, set on ProposalVoteRecorded
	Likes     int `json:"likes,omitempty"`
	Dislikes  int `json:"dislikes,omitempty"`
	Threshold int `json:"threshold,omitempty"`

	MasterUserID uint64     `json:"master_user_id,omitempty"`
	Badges       []BadgeRef `json:"badges,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

type AddresseeKind string

const (
	ToCuratorChat   AddresseeKind = "curator_chat"
	ToSubmitterChat AddresseeKind = "submitter_chat"
	ToUser          AddresseeKind = "user_direct"
)

// Addressee is an opaque delivery handle resolved by the adapter.
type Addressee struct {
	Kind         AddresseeKind `json:"kind"`
	ChatID       string        `json:"chat_id,omitempty"`
	ReplyTo      string        `json:"reply_to,omitempty"`
	Platform     db.Platform   `json:"platform,omitempty"`
	MasterUserID uint64        `json:"master_user_id,omitempty"`
}

func CuratorChat() Addressee { return Addressee{Kind: ToCuratorChat} }

func SubmitterChat(p *db.Proposal) Addressee {
	return Addressee{
		Kind:         ToSubmitterChat,
		ChatID:       p.SubmitterChatID,
		ReplyTo:      p.SubmitterMessageID,
		Platform:     p.SubmitterPlatform,
		MasterUserID: p.SubmitterUserID,
	}
}

func User(masterID uint64, platform db.Platform) Addressee {
	return Addressee{Kind: ToUser, MasterUserID: masterID, Platform: platform}
}

func (a Addressee) String() string {
	switch a.Kind {
	case ToSubmitterChat:
		return string(a.Kind) + ":" + a.ChatID + "/" + a.ReplyTo
	case ToUser:
		return string(a.Kind) + ":" + strconv.FormatUint(a.MasterUserID, 10)
	default:
		return string(a.Kind)
	}
}

// Notifier delivers an event. Implementations may block on I/O.
type Notifier interface {
	Emit(ctx context.Context, ev Event, to []Addressee) error
}

// Envelope is the serialized form of one delivery, used on the wire and in
// the retry outbox.
type Envelope struct {
	Event    Event       `json:"event"`
	To       []Addressee `json:"to"`
	Attempts int         `json:"attempts"`
}
