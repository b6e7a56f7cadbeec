package cli

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the canonical event-status record as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Status(cmd.Context())
	},
}

var etaCmd = &cobra.Command{
	Use:   "eta",
	Short: "Print the latest zero-crossing projection as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ETA(cmd.Context())
	},
}
