package main

import (
	"os"
	"strings"
	"time"

	"github.com/qiniu/alertview/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// set by ldflags
	version = "dev"

	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "alertview",
		Short: "Grafana alert rule list service",
		Long: `alertview keeps a render-ready projection of Grafana alert rules:
state labels, icons, relative age and error info, filterable by a search query.

  alertview serve               Run the HTTP API with periodic refresh
  alertview list [--query q]    Fetch once and print the rule list`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "config file path (.json, .yaml or .yml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newListCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("alertview failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(&cfg.Logging)
	return cfg, nil
}

func setupLogging(c *config.LoggingConfig) {
	switch strings.ToLower(c.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if strings.EqualFold(c.Format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
