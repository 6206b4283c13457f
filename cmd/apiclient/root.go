package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	envFlag      string
	servicesFlag string
	jsonOutput   bool
)

var rootCmd = &cobra.Command{
	Use:   "apiclient",
	Short: "Session-aware client for the paper API",
	Long: `apiclient talks to the paper API with a persisted session, refreshing
the access token transparently when it expires.

Environment Variables:
  API_ENV                   Active environment (default: development)
  API_SERVICES_FILE         Services table (default: services.json)
  SESSION_STORAGE           file, redis or memory (default: file)
  SESSION_DIR               Directory for the file backend (default: ~/.apiclient)
  REDIS_URL                 Redis address for the redis backend
  REFRESH_TRANSPORT         http or oauth2 (default: http)
  PROACTIVE_REFRESH_LEEWAY  Refresh ahead of expiry, e.g. 30s (default: off)
  LOG_LEVEL                 zerolog level (default: info)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(config.Dotenv()...); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		setupLogging(config.New().GetLogLevel())
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		displayAppname(cmd.OutOrStdout(), config.New().GetAppName())
		_ = cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "Active environment (overrides API_ENV)")
	rootCmd.PersistentFlags().StringVar(&servicesFlag, "services", "", "Services file (overrides API_SERVICES_FILE)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
}

// settings is the configuration with command line flags applied.
type settings struct {
	config.Config
}

func currentSettings() settings {
	return settings{Config: config.New()}
}

func (s settings) GetEnv() string {
	if envFlag != "" {
		return envFlag
	}
	return s.Config.GetEnv()
}

func (s settings) GetServicesFile() string {
	if servicesFlag != "" {
		return servicesFlag
	}
	return s.Config.GetServicesFile()
}

func setupLogging(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
