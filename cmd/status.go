package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-space-export/internal/journal"
	"github.com/rgonek/confluence-space-export/internal/manifest"
	"github.com/rgonek/confluence-space-export/internal/queue"
	"github.com/rgonek/confluence-space-export/internal/resume"
)

var flagStatusOut string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Describe the state of an export directory",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&flagStatusOut, "out", "export", "output directory to inspect")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	outputDir, err := filepath.Abs(flagStatusOut)
	if err != nil {
		return exitWith(ExitInvalidUsage, fmt.Sprintf("resolve output directory: %v", err))
	}
	out := cmd.OutOrStdout()

	state, sentinel, err := resume.Classify(outputDir)
	if err != nil {
		return exitWith(ExitValidation, err.Error())
	}
	fmt.Fprintf(out, "state: %s\n", state)
	if state == resume.StateInterrupted {
		if sentinel.Signal != "" {
			fmt.Fprintf(out, "  interrupted by: %s\n", sentinel.Signal)
		}
		if !sentinel.Timestamp.IsZero() {
			fmt.Fprintf(out, "  at: %s\n", sentinel.Timestamp.Format("2006-01-02 15:04:05 MST"))
		}
	}

	if m, err := manifest.Load(filepath.Join(outputDir, manifest.FileName)); err == nil {
		counts := map[string]int{}
		for _, entry := range m.Entries {
			counts[entry.Status]++
		}
		fmt.Fprintf(out, "manifest: %d entries", m.Len())
		for _, status := range []string{manifest.StatusExported, manifest.StatusUnchanged, manifest.StatusDenied, manifest.StatusRemoved, manifest.StatusSkipped} {
			if counts[status] > 0 {
				fmt.Fprintf(out, ", %d %s", counts[status], status)
			}
		}
		fmt.Fprintln(out)
	}

	if j, err := journal.Load(filepath.Join(outputDir, journal.FileName), ""); err == nil && j.Len() > 0 {
		fmt.Fprintf(out, "journal: %d entries, %d pages completed\n",
			j.Len(), len(j.CompletedIDs(journal.TypePage)))
	}

	q, report, err := queue.Restore(outputDir, queue.Options{})
	if err == nil && (q.Size() > 0 || q.ProcessedCount() > 0) {
		fmt.Fprintf(out, "queue: %s, %d pending, %d processed (restored via %s)\n",
			q.State(), q.Size(), q.ProcessedCount(), report.Source)
	}
	return nil
}
