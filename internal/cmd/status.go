package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"convoy/internal/config"
	"convoy/internal/core"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/status", cfg.StatusPort))
		if err != nil {
			return fmt.Errorf("status server not reachable (is a deploy running with --serve?): %w", err)
		}
		defer resp.Body.Close()

		var payload struct {
			Services []core.ServiceStatus `json:"services"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		printStatus(payload.Services)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
