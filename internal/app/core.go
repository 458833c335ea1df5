package app

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oggyb/cunhao-core/internal/service/badges"
	"github.com/oggyb/cunhao-core/internal/service/curators"
	"github.com/oggyb/cunhao-core/internal/service/engagement"
	"github.com/oggyb/cunhao-core/internal/service/identity"
	"github.com/oggyb/cunhao-core/internal/service/notify"
	"github.com/oggyb/cunhao-core/internal/service/phrases"
	"github.com/oggyb/cunhao-core/internal/service/proposals"
	"github.com/oggyb/cunhao-core/internal/service/usage"
)

// Core is every core service, built once at startup and handed to adapters.
type Core struct {
	Identity   *identity.Service
	Usage      *usage.Service
	Badges     *badges.Engine
	Proposals  *proposals.Service
	Phrases    *phrases.Service
	Curators   *curators.Directory
	Engagement *engagement.Service
	Notify     *notify.Dispatcher
}

// NewCore wires the services on top of the shared infrastructure. notifier
// receives outbound events; source lists the curator chat.
func NewCore(appCtx *AppContext, notifier notify.Notifier, source curators.MemberSource) *Core {
	cfg := appCtx.Config
	log := appCtx.Logger

	now := appCtx.Clock
	if now == nil {
		now = time.Now
	}
	utc := func() time.Time { return now().UTC() }
	loc := badgeLocation(cfg.Badges.TimeZone, log)
	local := func() time.Time { return now().In(loc) }

	var outbox notify.Outbox
	if appCtx.RedisCache != nil {
		outbox = appCtx.RedisCache
	}
	dispatcher := notify.NewDispatcher(notifier, outbox, log.With("service", "notify"), notify.WithTimeout(cfg.OpTimeout))

	ids := identity.NewService(appCtx.DB, log.With("service", "identity"), identity.Config{
		LinkTokenTTL: cfg.Identity.LinkTokenTTL,
		Now:          utc,
	})
	engine := badges.NewEngine(appCtx.DB, dispatcher, log.With("service", "badges"), local)
	directory := curators.NewDirectory(source, ids, cfg.Curators.BotUserID, cfg.Curators.CacheTTL, log.With("service", "curators"))

	return &Core{
		Identity: ids,
		Usage:    usage.NewService(appCtx.DB, log.With("service", "usage"), utc),
		Badges:   engine,
		Proposals: proposals.NewService(appCtx.DB, directory, dispatcher, log.With("service", "proposals"), proposals.Config{
			OwnerMasterUserID: cfg.Proposals.OwnerMasterUserID,
			ExpiryWindow:      cfg.Proposals.ExpiryWindow,
			Blacklist:         cfg.Proposals.Blacklist,
			OpTimeout:         cfg.OpTimeout,
			Now:               utc,
		}),
		Phrases:  phrases.NewService(appCtx.DB, log.With("service", "phrases")),
		Curators: directory,
		Engagement: engagement.NewService(appCtx.DB, ids, engine, log.With("service", "engagement"), engagement.Config{
			ScoreSecret: cfg.Game.ScoreSecret,
			Now:         utc,
		}),
		Notify: dispatcher,
	}
}

// badgeLocation resolves the zone of the time-of-day badges, falling back to
// UTC when the name is empty or unknown.
func badgeLocation(name string, log *slog.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("unknown badge time zone, using UTC", "tz", name, "err", err)
		return time.UTC
	}
	return loc
}

// NotifierFromConfig publishes to AMQP when a broker is configured and
// always logs. The returned close func releases the broker connection.
func NotifierFromConfig(appCtx *AppContext) (notify.Notifier, func() error) {
	logN := notify.LogNotifier{Log: appCtx.Logger.With("service", "notify")}
	cfg := appCtx.Config
	if cfg.Notify.AMQPURL == "" {
		return logN, func() error { return nil }
	}
	pub := notify.NewAMQPNotifier(cfg.Notify.AMQPURL, cfg.Notify.Queue)
	return notify.Multi{pub, logN}, pub.Close
}

// MemberSourceFromConfig lists the curator chat through the Telegram Bot API
// when a token and chat handle are configured, otherwise from the static
// member list. Proposal participants are probed for plain membership.
func MemberSourceFromConfig(appCtx *AppContext) (curators.MemberSource, error) {
	cfg := appCtx.Config
	if cfg.Telegram.Token != "" && cfg.Curators.ChatHandle != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		return curators.NewTelegramSource(api, cfg.Curators.ChatHandle, curators.NewParticipants(appCtx.DB))
	}
	return curators.ParseStatic(cfg.Curators.StaticMembers)
}
