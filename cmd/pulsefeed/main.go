package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "pulsefeed"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Crypto social sentiment ingestion and enrichment pipeline",
		Version: version,
		Long: `PulseFeed continuously ingests crypto chatter from Twitter, Reddit and
Telegram, enriches it with rule-based sentiment and risk indicators,
and serves aggregated per-asset context over HTTP.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: ingestion, enrichment, alerting and the HTTP API",
		RunE:  runPipeline,
	}
	runCmd.Flags().String("config", "config/pulsefeed.yaml", "Path to the YAML config file")
	runCmd.Flags().String("store", "postgres", "Event store backend (postgres|memory)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API without ingesting",
		RunE:  runServeOnly,
	}
	serveCmd.Flags().String("config", "config/pulsefeed.yaml", "Path to the YAML config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
