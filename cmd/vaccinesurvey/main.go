package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rzpsarthak13/vaccinesurvey/pkg/vaccinesurvey"
)

var (
	configPath string
	serverURL  string
	username   string
	password   string
	verbose    bool

	logger *zap.Logger
	config *vaccinesurvey.Config
)

var rootCmd = &cobra.Command{
	Use:   "vaccinesurvey",
	Short: "Import vaccine survey samples from a Resolwe server",
	Long: `vaccinesurvey logs in to a Resolwe server, lists the samples of the
vaccine survey descriptor schema and converts them into a typed table.

Configuration is read from --config (YAML or JSON), then from VACCINESURVEY_*
environment variables, then from the command line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		config, err = loadConfig(cmd)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "configuration file (.yaml, .yml or .json)")
	flags.StringVar(&serverURL, "server", "", "Resolwe server URL (default http://127.0.0.1:8001)")
	flags.StringVarP(&username, "username", "u", "", "account username")
	flags.StringVarP(&password, "password", "p", "", "account password")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(importCmd, schemaCmd, watchCmd)
}

// loadConfig layers the command line flags over the file and environment configuration.
func loadConfig(cmd *cobra.Command) (*vaccinesurvey.Config, error) {
	cfg, err := vaccinesurvey.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.URL = serverURL
	}
	if flags.Changed("username") {
		cfg.Server.Username = username
	}
	if flags.Changed("password") {
		cfg.Server.Password = password
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
