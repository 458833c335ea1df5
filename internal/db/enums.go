package db

import (
	"fmt"
	"strings"
)

// Kind discriminates short phrases ("¿Qué pasa, <x>?") from long ones.
type Kind string

const (
	KindShort Kind = "short"
	KindLong  Kind = "long"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindShort, KindLong:
		return k, nil
	}
	return "", fmt.Errorf("unknown phrase kind %q", s)
}

type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformSlack    Platform = "slack"
)

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformTelegram, PlatformSlack:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// ProposalStatus only moves forward: open -> {approved, rejected, expired}.
type ProposalStatus string

const (
	StatusOpen     ProposalStatus = "open"
	StatusApproved ProposalStatus = "approved"
	StatusRejected ProposalStatus = "rejected"
	StatusExpired  ProposalStatus = "expired"
)

func (s ProposalStatus) Terminal() bool { return s != StatusOpen && s != "" }

type Action string

const (
	ActionPhrase  Action = "phrase"
	ActionSticker Action = "sticker"
	ActionSaludo  Action = "saludo"
	ActionVision  Action = "vision"
	ActionAIAsk   Action = "ai_ask"
	ActionCommand Action = "command"
	ActionGame    Action = "game"
)

var actions = []Action{
	ActionPhrase, ActionSticker, ActionSaludo, ActionVision, ActionAIAsk, ActionCommand, ActionGame,
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

type Vote string

const (
	VoteLike    Vote = "like"
	VoteDislike Vote = "dislike"
)
