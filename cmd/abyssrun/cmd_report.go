package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"abyssrun/internal/config"
	"abyssrun/internal/report"
	"abyssrun/internal/store"
)

func runReport(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	st, err := store.Load(cfg.SnapshotPath)
	if err != nil {
		return err
	}

	rep := report.NewBuilder(st, log).Build()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
