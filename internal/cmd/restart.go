package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"convoy/internal/graph"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart running service containers in dependency order",
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
		return driver.Restart(ctx, g)
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
