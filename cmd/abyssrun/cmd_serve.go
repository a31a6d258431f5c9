package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"abyssrun/internal/assets"
	"abyssrun/internal/characters"
	"abyssrun/internal/config"
	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
	"abyssrun/internal/market"
	"abyssrun/internal/metrics"
	"abyssrun/internal/netx/client"
	"abyssrun/internal/netx/ratelimit"
	"abyssrun/internal/report"
	"abyssrun/internal/saga"
	"abyssrun/internal/sde"
	"abyssrun/internal/store"
	"abyssrun/internal/web"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	windows := make([]*ratelimit.Window, 0, len(cfg.RateLimits))
	for _, rl := range cfg.RateLimits {
		windows = append(windows, ratelimit.NewWindow(rl.Interval, rl.Limit))
	}
	hc := client.New(ratelimit.NewGroup(windows...),
		client.WithLogger(log),
		client.WithWaitObserver(func(d time.Duration) { m.LimiterWait.Observe(d.Seconds()) }),
	)
	api := esi.NewClient(hc, esi.WithBaseURL(cfg.ESIBaseURL), esi.WithLogger(log))

	// The static dump is an optimization, not a requirement: without it
	// every lookup goes to the remote API.
	var static assets.StaticData
	var abyssal []esi.TypeID
	if db, err := sde.Open(ctx, cfg.SDEPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.SDEPath).Msg("static data unavailable, using remote lookups only")
	} else {
		defer db.Close()
		static = db
		if abyssal, err = db.AbyssalTypeIDs(ctx); err != nil {
			return fmt.Errorf("load abyssal type ids: %w", err)
		}
		log.Info().Int("abyssal_types", len(abyssal)).Msg("static data loaded")
	}

	st, err := store.Load(cfg.SnapshotPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", cfg.SnapshotPath).Msg("snapshot unreadable, starting empty")
		}
		st = store.New(abyssal)
	} else {
		log.Info().Str("path", cfg.SnapshotPath).Msg("snapshot loaded")
	}

	catalogue := hobo.NewCache(hc, cfg.HoboURL, cfg.HoboTTL, log)
	registry := characters.NewRegistry()
	proc := assets.NewProcessor(api, static, catalogue, st, registry, log)

	resolve := func(id esi.CharacterID) {
		go func() {
			engine := saga.New[assets.Work, string, assets.Result](proc,
				saga.WithWorkers(cfg.Workers),
				saga.WithMaxRetries(cfg.MaxRetries),
				saga.WithLogger(log),
				saga.WithHooks(m.SagaHooks("assets")),
			)
			if err := engine.Run(ctx, assets.Seeds(id)); err != nil {
				log.Error().Err(err).Int64("character_id", int64(id)).Msg("asset resolution failed")
				return
			}
			log.Info().Int64("character_id", int64(id)).Msg("asset resolution complete")
			if err := st.Save(cfg.SnapshotPath); err != nil {
				log.Warn().Err(err).Msg("snapshot save failed")
			}
		}()
	}

	refresher := market.NewRefresher(api, market.DefaultWatches, cfg.MarketInterval, log)
	go refresher.Run(ctx)

	srv := web.New(report.NewBuilder(st, log), registry, api, m, refresher, resolve, log)
	err = srv.Run(ctx, cfg.Listen)

	if saveErr := st.Save(cfg.SnapshotPath); saveErr != nil {
		log.Warn().Err(saveErr).Msg("snapshot save on shutdown failed")
	}
	return err
}
