// Package report renders the end-of-batch summary.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"specbench/internal/coordinator"
)

// WriteTable prints one row per variant with its pipeline outcome.
func WriteTable(results []coordinator.DescriptorResult, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "\n=== Benchmark Batch Summary ===\n\n")

	header := []string{"Variant", "Outcome", "Exit", "Duration", "Uploaded", "Analyzed"}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))

	for _, r := range results {
		row := []string{
			r.Name,
			string(r.Outcome),
			fmt.Sprintf("%d", r.ExitCode),
			fmtDuration(r.Duration),
			yesNo(r.Uploaded),
			yesNo(r.Analyzed),
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	fmt.Fprintln(tw)
	tw.Flush()
}

func fmtDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
