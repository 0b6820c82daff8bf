package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hsdfat8/fieldops/internal/harness"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

var (
	harnessBatchSize int
	harnessRuns      int
	harnessMode      string
	harnessPower     string
)

var harnessCmd = &cobra.Command{
	Use:   "harness",
	Short: "Run the storage fallback checks and print the results as JSON",
	Long: `Runs the four fallback checks (structured availability, document round trip,
data consistency, performance) under the given connectivity and power modes and
prints every run followed by the summary.

Example:
  fieldops harness --mode offline --power critical --batch-size 50 --runs 3`,
	RunE: runHarness,
}

func init() {
	harnessCmd.Flags().IntVar(&harnessBatchSize, "batch-size", 0, "records per run (0 uses the three-record quick batch)")
	harnessCmd.Flags().IntVar(&harnessRuns, "runs", 1, "number of runs")
	harnessCmd.Flags().StringVar(&harnessMode, "mode", "", "connectivity mode to apply before running")
	harnessCmd.Flags().StringVar(&harnessPower, "power", "", "power mode to apply before running")
}

func runHarness(cmd *cobra.Command, _ []string) error {
	if harnessRuns < 1 || harnessBatchSize < 0 {
		return fmt.Errorf("--runs must be positive and --batch-size cannot be negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if harnessMode != "" {
		if err := app.sim.SetMode(simulator.Mode(harnessMode)); err != nil {
			return err
		}
	}
	if harnessPower != "" {
		if err := app.sim.SetPowerMode(simulator.PowerMode(harnessPower)); err != nil {
			return err
		}
	}

	batch := harness.QuickBatch()
	if harnessBatchSize > 0 {
		batch = harness.SampleBatch(harnessBatchSize)
	}

	out := struct {
		Runs    []harness.TestRun `json:"runs"`
		Summary harness.Summary   `json:"summary"`
	}{}
	for i := 0; i < harnessRuns; i++ {
		out.Runs = append(out.Runs, app.harness.Run(ctx, batch))
	}
	out.Summary = app.harness.Summary()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
