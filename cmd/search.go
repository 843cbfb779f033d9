package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-space-export/internal/exporter"
	"github.com/rgonek/confluence-space-export/internal/manifest"
	"github.com/rgonek/confluence-space-export/internal/search"
)

var (
	flagSearchOut     string
	flagSearchLimit   int
	flagSearchRebuild bool
	flagSearchSpace   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a previously exported space",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&flagSearchOut, "out", "export", "output directory of the export to search")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&flagSearchRebuild, "rebuild", false, "rebuild the index from the manifest before searching")
	searchCmd.Flags().StringVar(&flagSearchSpace, "space", "", "space key (required with --rebuild)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	outputDir, err := filepath.Abs(flagSearchOut)
	if err != nil {
		return exitWith(ExitInvalidUsage, fmt.Sprintf("resolve output directory: %v", err))
	}

	if flagSearchRebuild {
		if flagSearchSpace == "" {
			return exitWith(ExitInvalidUsage, "--space is required with --rebuild")
		}
		m, err := manifest.Load(filepath.Join(outputDir, manifest.FileName))
		if err != nil {
			return exitWith(ExitValidation, fmt.Sprintf("load manifest: %v", err))
		}
		spaceDir := filepath.Join(outputDir, exporter.SpacesDirName, flagSearchSpace)
		if _, err := search.Build(outputDir, spaceDir, m); err != nil {
			return exitWith(ExitValidation, fmt.Sprintf("rebuild index: %v", err))
		}
	}

	hits, err := search.Query(outputDir, args[0], flagSearchLimit)
	if err != nil {
		return exitWith(ExitValidation, err.Error())
	}

	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "no matches")
		return nil
	}
	for _, hit := range hits {
		fmt.Fprintf(out, "%-12s %-40s %s\n", hit.ID, hit.Title, hit.Path)
	}
	return nil
}
