package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/pkg/vaccinesurvey"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the table loaded and publish every reload",
	Long: `Runs until interrupted. The table is loaded on start, again on every
schedule.refresh tick, and whenever the configuration file changes when
schedule.watch_config is set. Each loaded table is published to the sink.

Example:
  vaccinesurvey watch --config survey.yaml`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	loader, err := vaccinesurvey.NewLoader(config,
		vaccinesurvey.WithLoaderLogger(logger),
		vaccinesurvey.WithConfigFile(configPath),
		vaccinesurvey.OnTable(func(t *vaccinesurvey.Table) {
			fmt.Fprintf(out, "%d samples loaded.\n", t.Len())
		}),
	)
	if err != nil {
		return err
	}
	defer loader.Close()

	ctx := cmd.Context()
	if err := loader.Start(ctx); err != nil {
		return err
	}
	if config.Server.Username == "" || config.Server.Password == "" {
		fmt.Fprintln(out, loader.Status())
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("status", loader.Status()))
	return nil
}
