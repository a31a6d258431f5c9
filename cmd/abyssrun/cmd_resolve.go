package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"abyssrun/internal/assets"
	"abyssrun/internal/characters"
	"abyssrun/internal/config"
	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
	"abyssrun/internal/metrics"
	"abyssrun/internal/netx/client"
	"abyssrun/internal/netx/ratelimit"
	"abyssrun/internal/saga"
	"abyssrun/internal/sde"
	"abyssrun/internal/store"
)

var resolveToken string

func runResolve(cmd *cobra.Command, _ []string) error {
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
	}

	st := store.New(abyssal)
	registry := characters.NewRegistry()
	c, err := registry.Verify(ctx, api, &oauth2.Token{AccessToken: resolveToken})
	if err != nil {
		return err
	}
	log.Info().Int64("character_id", int64(c.ID)).Str("name", c.Name).Msg("character verified")

	catalogue := hobo.NewCache(hc, cfg.HoboURL, cfg.HoboTTL, log)
	proc := assets.NewProcessor(api, static, catalogue, st, registry, log)
	engine := saga.New[assets.Work, string, assets.Result](proc,
		saga.WithWorkers(cfg.Workers),
		saga.WithMaxRetries(cfg.MaxRetries),
		saga.WithLogger(log),
		saga.WithHooks(m.SagaHooks("assets")),
	)
	if err := engine.Run(ctx, assets.Seeds(c.ID)); err != nil {
		return err
	}
	if err := st.Save(cfg.SnapshotPath); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	log.Info().Str("path", cfg.SnapshotPath).Msg("snapshot saved")
	return nil
}
