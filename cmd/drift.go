package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sentinelsweep/sweep-cli/internal/baseline"
	"github.com/sentinelsweep/sweep-cli/internal/report"
)

var driftCmd = &cobra.Command{
	Use:   "drift [run-id]",
	Short: "Compare a stored run against the latest baseline",
	Long: `Load a completed run's JSON report (the most recent one by default)
and compare its assessment batch against the most recent stored
baseline. Exits non-zero when drift is detected so the command can
gate scheduled jobs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDrift,
}

func init() {
	driftCmd.Flags().Bool("update", false, "Record this run as the new baseline after comparing")
	driftCmd.Flags().Bool("quiet", false, "Suppress output; signal drift via exit code only")
}

func runDrift(cmd *cobra.Command, args []string) error {
	update, _ := cmd.Flags().GetBool("update")
	quiet, _ := cmd.Flags().GetBool("quiet")

	runPath, err := resolveRunPath(args)
	if err != nil {
		return err
	}

	payload, err := report.LoadPayload(runPath)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runPath, err)
	}

	store, err := baseline.NewStore(filepath.Join(resultsDir, "baselines"))
	if err != nil {
		return err
	}

	drift, err := store.DetectDrift(payload.Assessments)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("%s Run: %s (%d hosts)\n", colorInfo("→"),
			payload.Metadata.ReportID, len(payload.Assessments))
		printDriftReport(drift)
	}

	if update {
		ref, err := store.WriteBaseline(payload.Assessments)
		if err != nil {
			return fmt.Errorf("write baseline: %w", err)
		}
		if !quiet {
			fmt.Printf("%s Baseline recorded: %s\n", colorInfo("→"), ref.Path)
		}
	}

	if drift.DriftDetected {
		return fmt.Errorf("configuration drift detected since baseline %s", drift.BaselineTime)
	}
	return nil
}

// resolveRunPath maps an optional run ID to a stored report file, or
// picks the most recent run when none is given.
func resolveRunPath(args []string) (string, error) {
	if len(args) == 1 {
		return filepath.Join(resultsDir, args[0]+".json"), nil
	}

	matches, err := filepath.Glob(filepath.Join(resultsDir, "sweep_*.json"))
	if err != nil {
		return "", fmt.Errorf("list runs: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no stored runs in %s; run a scan first", resultsDir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
