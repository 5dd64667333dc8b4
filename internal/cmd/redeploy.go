package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"convoy/internal/graph"
)

var redeployCmd = &cobra.Command{
	Use:   "redeploy",
	Short: "Tear the deployment down and bring it back up",
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

		if err := driver.Teardown(ctx, g); err != nil {
			return err
		}
		handle, err := driver.Deploy(ctx, desc.CoreServices(), cfg.ProbeHost)
		if handle != nil {
			printStatus(handle.Status())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(redeployCmd)
}
