package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	endpoint   string
	verbose    bool
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()

	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	envEndpoint := os.Getenv("QUIZ_WS_ENDPOINT")

	cmd := &cobra.Command{
		Use:   "quiz-session",
		Short: "Live quiz session client (host and player) over WebSocket",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&endpoint, "endpoint", envEndpoint, "coordinator websocket URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	cmd.AddCommand(NewHostCmd(&configPath, &endpoint))
	cmd.AddCommand(NewPlayCmd(&configPath, &endpoint))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
