package cli

import (
	"github.com/spf13/cobra"
)

var meshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Probe external time references and report local clock drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Mesh(cmd.Context())
	},
}
