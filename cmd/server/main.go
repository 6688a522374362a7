package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"osp-stores-backend/internal/adjustment"
	"osp-stores-backend/internal/catalog"
	"osp-stores-backend/internal/config"
	"osp-stores-backend/internal/database"
	"osp-stores-backend/internal/grn"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/server"
	"osp-stores-backend/internal/workflow"
)

func main() {
	cfg, warnings, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init("osp-stores-backend", cfg.IsDevelopment(), cfg.LogLevel)
	for _, w := range warnings {
		logger.Logger.Warn().Msg(w)
	}

	db, err := database.Init(cfg.DatabaseDSN)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("database init failed")
	}

	cache, err := catalog.NewItemCache(cfg.RedisURL, cfg.CatalogCacheTTL)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("item cache unavailable, reading through to the database")
		cache = catalog.NewNoopItemCache()
	}

	l := ledger.New()
	cat := catalog.NewService(db, cache)
	app := server.New(server.Deps{
		Config:     cfg,
		DB:         db,
		Catalog:    cat,
		Workflow:   workflow.NewService(db, l, cat, workflow.Policy{EnforceApprovalCeiling: cfg.EnforceApprovalCeiling}),
		GRN:        grn.NewService(db, l, cat),
		Adjustment: adjustment.NewService(db, l, cat),
	})

	go func() {
		logger.Logger.Info().Str("port", cfg.HTTPPort).Msg("listening")
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			logger.Logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Logger.Error().Err(err).Msg("shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
