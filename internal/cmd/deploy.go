package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"convoy/internal/api"
	"convoy/internal/core"
)

var serveStatus bool

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Bring up the declared services in dependency order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, desc, err := loadInputs()
		if err != nil {
			return err
		}
		driver, err := buildDriver(cfg, desc)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		handle, err := driver.Deploy(ctx, desc.CoreServices(), cfg.ProbeHost)
		if handle != nil {
			printStatus(handle.Status())
		}
		if err != nil {
			return err
		}

		if serveStatus {
			server := api.NewServer(cfg.StatusPort, handle, log.Logger)
			return server.Run(ctx)
		}
		return nil
	},
}

func init() {
	deployCmd.Flags().BoolVar(&serveStatus, "serve", false, "keep running and serve /status after deploying")
	rootCmd.AddCommand(deployCmd)
}

func printStatus(statuses []core.ServiceStatus) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, st := range statuses {
		state := st.State
		switch st.State {
		case core.StateRunning:
			state = green(state)
		case core.StateFailed:
			state = red(state)
		default:
			state = yellow(state)
		}
		fmt.Printf("%-20s batch %d  %s\n", st.Name, st.Batch, state)
	}
}
