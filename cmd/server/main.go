package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/oggyb/crosspost-earnings/internal/app"
	"github.com/oggyb/crosspost-earnings/internal/cache"
	"github.com/oggyb/crosspost-earnings/internal/config"
	"github.com/oggyb/crosspost-earnings/internal/db"
	"github.com/oggyb/crosspost-earnings/internal/logger"
	"github.com/oggyb/crosspost-earnings/internal/scheduler"
	"github.com/oggyb/crosspost-earnings/internal/server"
	"github.com/oggyb/crosspost-earnings/internal/service/earnings"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer redisCache.Close()

	// Inject logger into app context
	appCtx := app.New(cfg, database, redisCache, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	earningsReg := earnings.NewRegistrar(appCtx)
	registrars := []server.Registrar{
		earningsReg,
	}

	if spec := cfg.Earnings.RecalcCron; spec != "" {
		runner := scheduler.New(log, ctx)
		job := scheduler.RecalcJob(earningsReg.Service(), log, cfg.Earnings.RecalcLockTTL)
		if _, err := runner.Add(spec, job); err != nil {
			log.Error("invalid RECALC_CRON", "spec", spec, "err", err)
			return
		}
		runner.Start()
		defer runner.Stop()
	}

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr, "env", cfg.App.ENV)

	if err := server.StartGRPCServer(ctx, cfg, log, registrars...); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
	log.Info("gRPC server stopped")
}
