package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/cache"
	"github.com/oggyb/crosspost-earnings/internal/config"
	"github.com/oggyb/crosspost-earnings/internal/recalc"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	// Engagement re-reads platform counters during recalculation; nil keeps stored counters.
	Engagement recalc.EngagementSource
}

// New creates a new AppContext
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
	}
}
