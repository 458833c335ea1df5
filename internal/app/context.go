package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/cache"
	"github.com/oggyb/cunhao-core/internal/config"
)

// AppContext holds shared infrastructure (DB, Redis, Logger, Config).
// Services never see it; NewCore hands each one only what it needs.
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Config     *config.Config

	// Clock overrides time.Now for the services built by NewCore.
	Clock func() time.Time
}

// New creates a new AppContext. rdb may be nil, which disables the
// notification outbox.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Config:     cfg,
	}
}
