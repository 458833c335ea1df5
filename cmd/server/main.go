package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/oggyb/cunhao-core/internal/app"
	"github.com/oggyb/cunhao-core/internal/cache"
	"github.com/oggyb/cunhao-core/internal/config"
	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/logger"
	"github.com/oggyb/cunhao-core/internal/scheduler"
	"github.com/oggyb/cunhao-core/internal/server"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis (notification outbox + job locks)
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	appCtx := app.New(cfg, database, redisCache, log)

	notifier, closeNotifier := app.NotifierFromConfig(appCtx)
	defer func() {
		if err := closeNotifier(); err != nil {
			log.Warn("failed to close notifier", "err", err)
		}
	}()

	source, err := app.MemberSourceFromConfig(appCtx)
	if err != nil {
		log.Error("failed to init curator source", "err", err)
		return
	}

	core := app.NewCore(appCtx, notifier, source)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, logger.For("seed")); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	jobs := scheduler.New(redisCache, cfg.OpTimeout, logger.For("scheduler"))
	if err := jobs.AddTasks(scheduler.CoreTasks(cfg, core.Proposals, core.Notify, core.Identity, log)...); err != nil {
		log.Error("failed to schedule jobs", "err", err)
		return
	}
	jobs.Start()
	defer jobs.Stop()

	health := server.NewHealthRegistrar()
	health.SetServing(true)
	defer health.Shutdown()

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr)

	if err := server.StartGRPCServer(ctx, cfg, health); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
}
