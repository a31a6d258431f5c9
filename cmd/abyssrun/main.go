package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"abyssrun/internal/config"
)

// Version is stamped at release time.
const Version = "0.3.0"

var configPath string

// rootCmd is the base command for the abyssrun CLI.
var rootCmd = &cobra.Command{
	Use:   "abyssrun",
	Short: "Abyssal asset resolver and dynamics report server",
	Long: `abyssrun resolves a character's abyssal items and everything they
depend on (types, stations, dogma attributes, market groups) into a
local relation store and serves mutation range reports over HTTP.`,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("abyssrun v%s\n", Version)
		fmt.Println("Use 'abyssrun serve' to run the resolver and report server")
	},
}

// serveCmd runs the resolver pipeline and the HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resolver and the report server",
	RunE:  runServe,
}

// resolveCmd runs one asset resolution for a raw access token and
// saves the snapshot, without starting the server.
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one character's assets and save the snapshot",
	RunE:  runResolve,
}

// reportCmd builds a dynamics report from a saved snapshot and prints
// it to stdout, without touching the network.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the dynamics report from a saved snapshot",
	RunE:  runReport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "abyssrun.yaml", "Path to configuration file")
	resolveCmd.Flags().StringVar(&resolveToken, "token", "", "Access token for the character to resolve")
	_ = resolveCmd.MarkFlagRequired("token")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(reportCmd)
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
