package curators

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oggyb/cunhao-core/internal/db"
)

// ChatAPI is the slice of *tgbotapi.BotAPI used by TelegramSource.
type ChatAPI interface {
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Candidates lists platform user ids that may be plain members of the
// curator chat. The Bot API cannot enumerate members, so each candidate is
// probed individually.
type Candidates interface {
	CandidateIDs(ctx context.Context, platform db.Platform) ([]string, error)
}

// maxProbes bounds the GetChatMember calls of one refresh.
const maxProbes = 100

// TelegramSource lists the moderation chat: every administrator plus every
// candidate whose membership is confirmed. The chat handle is either a
// numeric chat id or an @username.
type TelegramSource struct {
	api        ChatAPI
	chat       tgbotapi.ChatConfig
	candidates Candidates
}

// NewTelegramSource builds the source. candidates may be nil, in which case
// only administrators are listed.
func NewTelegramSource(api ChatAPI, chatHandle string, candidates Candidates) (*TelegramSource, error) {
	chat, err := parseChatHandle(chatHandle)
	if err != nil {
		return nil, err
	}
	return &TelegramSource{api: api, chat: chat, candidates: candidates}, nil
}

func parseChatHandle(handle string) (tgbotapi.ChatConfig, error) {
	handle = strings.TrimSpace(handle)
	switch {
	case handle == "":
		return tgbotapi.ChatConfig{}, fmt.Errorf("curator chat handle is empty")
	case strings.HasPrefix(handle, "@"):
		return tgbotapi.ChatConfig{SuperGroupUsername: handle}, nil
	}
	id, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return tgbotapi.ChatConfig{}, fmt.Errorf("invalid curator chat handle %q", handle)
	}
	return tgbotapi.ChatConfig{ChatID: id}, nil
}

// Members does live Bot API calls; the Directory caches the result.
func (s *TelegramSource) Members(ctx context.Context) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	admins, err := s.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{ChatConfig: s.chat})
	if err != nil {
		return nil, fmt.Errorf("telegram: get chat administrators: %w", err)
	}

	seen := make(map[string]bool, len(admins))
	out := make([]Member, 0, len(admins))
	for _, a := range admins {
		if a.User == nil {
			continue
		}
		m := telegramMember(a.User)
		seen[m.PlatformUserID] = true
		out = append(out, m)
	}

	if s.candidates == nil {
		return out, nil
	}
	ids, err := s.candidates.CandidateIDs(ctx, db.PlatformTelegram)
	if err != nil {
		return nil, fmt.Errorf("telegram: list candidates: %w", err)
	}

	probes := 0
	for _, id := range ids {
		if seen[id] || probes == maxProbes {
			continue
		}
		userID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		probes++

		cm, err := s.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID:             s.chat.ChatID,
			SuperGroupUsername: s.chat.SuperGroupUsername,
			UserID:             userID,
		}})
		// users that never joined make the API fail; they are simply not members
		if err != nil || !inChat(cm) {
			continue
		}
		m := Member{Platform: db.PlatformTelegram, PlatformUserID: id}
		if cm.User != nil {
			m = telegramMember(cm.User)
		}
		seen[id] = true
		out = append(out, m)
	}
	return out, nil
}

func inChat(cm tgbotapi.ChatMember) bool {
	return cm.Status == "member" || cm.IsAdministrator() || cm.IsCreator()
}

func telegramMember(u *tgbotapi.User) Member {
	return Member{
		Platform:       db.PlatformTelegram,
		PlatformUserID: strconv.FormatInt(u.ID, 10),
		IsBot:          u.IsBot,
	}
}

// StaticSource is a fixed member list, configured as "platform:id" entries.
type StaticSource []Member

// ParseStatic builds a StaticSource from "platform:id" entries.
func ParseStatic(entries []string) (StaticSource, error) {
	out := make(StaticSource, 0, len(entries))
	for _, e := range entries {
		p, id, ok := strings.Cut(e, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid curator entry %q, want platform:id", e)
		}
		platform, err := db.ParsePlatform(p)
		if err != nil {
			return nil, err
		}
		out = append(out, Member{Platform: platform, PlatformUserID: id})
	}
	return out, nil
}

func (s StaticSource) Members(context.Context) ([]Member, error) {
	return append([]Member(nil), s...), nil
}
