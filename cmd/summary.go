package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/rgonek/confluence-space-export/internal/exporter"
)

// maxFailedIDsShown truncates the failed-page list in the summary.
const maxFailedIDsShown = 20

func printSummary(out io.Writer, result exporter.Result) {
	fmt.Fprintf(out, "\nExport of space %s: %s in %s\n", result.SpaceKey, result.State, result.Duration.Round(10e6))
	fmt.Fprintf(out, "  pages:       %d exported, %d unchanged, %d denied, %d removed, %d failed\n",
		result.PagesExported, result.PagesUnchanged, result.PagesDenied, result.PagesRemoved, result.PagesFailed)
	if result.AttachmentsTotal > 0 {
		fmt.Fprintf(out, "  attachments: %d exported, %d failed\n", result.AttachmentsExported, result.AttachmentsFailed)
	}
	if result.Rewrite.FilesScanned > 0 {
		fmt.Fprintf(out, "  links:       %d rewritten, %d broken\n", result.Rewrite.LinksRewritten, result.Rewrite.BrokenLinks)
	}
	if result.Recovery.Source != "" && result.Recovery.Source != "fresh" && result.Recovery.Source != "snapshot" {
		fmt.Fprintf(out, "  queue:       recovered via %s (%d items recovered, %d dropped)\n",
			result.Recovery.Source, result.Recovery.RecoveredItems, result.Recovery.DroppedItems)
	}
	if result.HealthScore < 100 {
		fmt.Fprintf(out, "  queue health: %d/100\n", result.HealthScore)
	}

	if result.Restricted.Total > 0 {
		fmt.Fprintf(out, "  restricted:  %d pages\n", result.Restricted.Total)
		kinds := make([]string, 0, len(result.Restricted.Counts))
		for kind := range result.Restricted.Counts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(out, "    %s: %d\n", kind, result.Restricted.Counts[kind])
		}
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "  failed pages (%d):\n", len(result.Errors))
		shown := result.Errors
		if len(shown) > maxFailedIDsShown {
			shown = shown[:maxFailedIDsShown]
		}
		for _, pe := range shown {
			fmt.Fprintf(out, "    %s (%s)\n", pe.PageID, pe.Kind)
		}
		if len(result.Errors) > maxFailedIDsShown {
			fmt.Fprintf(out, "    ... and %d more\n", len(result.Errors)-maxFailedIDsShown)
		}
		printRemediations(out, result.Errors)
	}
}

func printRemediations(out io.Writer, errs []exporter.ProcessingError) {
	kinds := map[string]bool{}
	for _, pe := range errs {
		kinds[pe.Kind] = true
	}
	hints := []string{}
	if kinds[exporter.KindNetwork] || kinds[exporter.KindTimeout] {
		hints = append(hints, "check network connectivity to the Confluence base URL")
	}
	if kinds[exporter.KindAuthentication] {
		hints = append(hints, "verify CONFLUENCE_USERNAME and CONFLUENCE_PASSWORD")
	}
	if kinds[exporter.KindAuthorization] {
		hints = append(hints, "the account lacks permission for some pages; ask a space admin")
	}
	if kinds[exporter.KindFilesystem] {
		hints = append(hints, "check disk space and write permissions on the output directory")
	}
	if kinds[exporter.KindRateLimit] {
		hints = append(hints, "lower --concurrency or set --requests-per-second")
	}
	if len(hints) > 0 {
		fmt.Fprintln(out, "  suggestions:")
		for _, hint := range hints {
			fmt.Fprintf(out, "    - %s\n", hint)
		}
	}
}
