package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"polyticker/internal/application/usecase/ticker"
	"polyticker/internal/infrastructure/config"
	"polyticker/internal/infrastructure/logger"
	"polyticker/internal/infrastructure/metrics"
	"polyticker/internal/infrastructure/svc"
)

func main() {
	logger.Setup(logger.Options{})

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	dumpLabels := flag.Bool("dump-labels", false, "log every resolved label once preload finishes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(logger.Options{
		Level:      cfg.Log.Level,
		Verbose:    cfg.App.Verbose,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	assets, marketIDs, err := sc.Discover(ctx)
	if err != nil {
		_ = sc.Close()
		log.Fatal().Err(err).Msg("asset discovery failed")
	}

	// labels resolve in the background; until then the asset id is shown
	go func() {
		sc.Labels.Preload(ctx, marketIDs)
		if *dumpLabels || cfg.App.DumpLabels {
			for _, e := range sc.Labels.Dump() {
				log.Info().Str("asset", e.AssetID).Str("market", e.MarketID).Str("label", e.Label).Msg("label")
			}
		}
	}()

	log.Info().
		Str("config", *configPath).
		Int("assets", len(assets)).
		Int("markets", len(marketIDs)).
		Str("ws", cfg.Feed.WsURL).
		Msg("polyticker started")

	service := ticker.NewService(sc.BuildTickerServiceDeps(assets))
	if err := service.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("ticker service exited")
	}
}
