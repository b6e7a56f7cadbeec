package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"phase-gap-alerts/internal/app"
)

var (
	simulateStartDeg float64
	simulateRate     float64
	simulateDays     int
	simulateClarity  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic closing series through the trigger pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateDays <= 0 {
			return errors.New("--days must be greater than zero")
		}
		if simulateClarity < 0 || simulateClarity > 1 {
			return errors.New("--clarity must be within [0,1]")
		}

		opts := app.SimulateOptions{
			StartDeg:   simulateStartDeg,
			RatePerDay: simulateRate,
			Days:       simulateDays,
			Clarity:    simulateClarity,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateStartDeg, "start", 5.0, "Initial phase gap in degrees")
	simulateCmd.Flags().Float64Var(&simulateRate, "rate", 0.1, "Closing rate in degrees per day")
	simulateCmd.Flags().IntVar(&simulateDays, "days", 60, "Number of daily samples to simulate")
	simulateCmd.Flags().Float64Var(&simulateClarity, "clarity", 0.8, "Clarity metric supplied to every evaluation")
}
