package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	Notify struct {
		AMQPURL       string
		Queue         string
		RetrySchedule string
	}

	Telegram struct {
		Token string
	}

	Curators struct {
		ChatHandle    string
		BotUserID     string
		StaticMembers []string
		CacheTTL      time.Duration
	}

	Proposals struct {
		OwnerMasterUserID uint64
		ExpiryWindow      time.Duration
		ExpireSchedule    string
		Blacklist         []string
	}

	Identity struct {
		LinkTokenTTL  time.Duration
		PurgeSchedule string
	}

	Game struct {
		ScoreSecret string
	}

	Badges struct {
		TimeZone string
	}

	OpTimeout time.Duration
}

// Defaults recognised by the core when the environment leaves them unset.
const (
	DefaultProposalExpiryWindow = 30 * 24 * time.Hour
	DefaultLinkTokenTTL         = 10 * time.Minute
	DefaultCuratorCacheTTL      = 60 * time.Second
	DefaultOpTimeout            = 10 * time.Second
)

func New() *Config {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "cunhao_core")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	switch cfg.DB.Driver {
	case "sqlite":
		cfg.DB.DSN = getEnvDefault("SQLITE_PATH", "cunhao.db")
	case "postgres":
		cfg.DB.DSN = os.Getenv("POSTGRES_DSN")
		if cfg.DB.DSN == "" {
			cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
			cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
			cfg.DB.User = getEnvDefault("DB_USER", "postgres")
			cfg.DB.Password = getEnvDefault("DB_PASSWORD", "postgres")
			cfg.DB.Name = getEnvDefault("DB_NAME", "cunhao")

			cfg.DB.DSN = fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
			)
		}
	default:
		cfg.DB.DSN = os.Getenv("MYSQL_DSN")
		if cfg.DB.DSN == "" {
			cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
			cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
			cfg.DB.User = getEnvDefault("DB_USER", "root")
			cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
			cfg.DB.Name = getEnvDefault("DB_NAME", "cunhao")

			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Outbound notifications
	cfg.Notify.AMQPURL = os.Getenv("AMQP_URL")
	cfg.Notify.Queue = getEnvDefault("NOTIFY_QUEUE", "cunhao.events")
	cfg.Notify.RetrySchedule = getEnvDefault("NOTIFY_RETRY_SCHEDULE", "@every 30s")

	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")

	// Curators
	cfg.Curators.ChatHandle = os.Getenv("CURATOR_CHAT_HANDLE")
	cfg.Curators.BotUserID = os.Getenv("BOT_USER_ID")
	cfg.Curators.StaticMembers = splitList(os.Getenv("CURATOR_STATIC_MEMBERS"))
	cfg.Curators.CacheTTL = getDurationDefault("CURATOR_CACHE_TTL", DefaultCuratorCacheTTL)

	// Proposals
	if owner := os.Getenv("OWNER_MASTER_USER_ID"); owner != "" {
		if id, err := strconv.ParseUint(owner, 10, 64); err == nil {
			cfg.Proposals.OwnerMasterUserID = id
		}
	}
	cfg.Proposals.ExpiryWindow = getDurationDefault("PROPOSAL_EXPIRY_WINDOW", DefaultProposalExpiryWindow)
	cfg.Proposals.ExpireSchedule = getEnvDefault("EXPIRE_SCHEDULE", "@every 1h")
	cfg.Proposals.Blacklist = splitList(os.Getenv("BLACKLIST"))

	// Identity
	cfg.Identity.LinkTokenTTL = getDurationDefault("LINK_TOKEN_TTL", DefaultLinkTokenTTL)
	cfg.Identity.PurgeSchedule = getEnvDefault("LINK_PURGE_SCHEDULE", "@every 15m")

	cfg.Game.ScoreSecret = os.Getenv("GAME_SCORE_SECRET")

	// Time-of-day badges are judged on the community's wall clock
	cfg.Badges.TimeZone = getEnvDefault("BADGE_TIMEZONE", "Europe/Madrid")

	cfg.OpTimeout = getDurationDefault("OP_TIMEOUT", DefaultOpTimeout)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDurationDefault(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// splitList parses a comma separated env value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
