package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the stores and the audit archive are healthy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h := app.Health(cmd.Context())
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), h)
		}
		switch {
		case !h.Ready:
			printWarning(cmd.OutOrStdout(), "not ready: %s", h.Message)
		case h.Degraded:
			printWarning(cmd.OutOrStdout(), "degraded: %s", h.Message)
		default:
			printSuccess(cmd.OutOrStdout(), "healthy")
		}
		return nil
	},
}
