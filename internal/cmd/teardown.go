package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"convoy/internal/graph"
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Stop and remove all declared services in reverse dependency order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, desc, err := loadInputs()
		if err != nil {
			return err
		}
		driver, err := buildDriver(cfg, desc)
		if err != nil {
			return err
		}
		g, err := graph.Build(desc.CoreServices(), cfg.ProbeHost)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return driver.Teardown(ctx, g)
	},
}

func init() {
	rootCmd.AddCommand(teardownCmd)
}
