// Package output renders run summaries and live progress.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/torosent/crankvu/internal/metrics"
	"github.com/torosent/crankvu/internal/threshold"
)

var printer = message.NewPrinter(language.English)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s metrics.Summary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", s.RunID)
	}
	printer.Fprintf(w, "Virtual Users:     %d\n", s.VirtualUsers)
	printer.Fprintf(w, "Total Requests:    %d\n", s.Total)
	printer.Fprintf(w, "Successful:        %d\n", s.Successes)
	printer.Fprintf(w, "Failed:            %d\n", s.Failures)
	if s.Failures > 0 {
		printer.Fprintf(w, "  Check Failures:  %d\n", s.CheckFailures)
		printer.Fprintf(w, "  Transport Errors: %d\n", s.TransportErrors)
	}
	if s.Interrupted > 0 {
		printer.Fprintf(w, "Interrupted:       %d\n", s.Interrupted)
	}
	fmt.Fprintf(w, "Checks Passed:     %.2f%%\n", s.ChecksPassRate*100)
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration)
	printer.Fprintf(w, "Requests/sec:      %.2f\n", s.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", s.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", s.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", s.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", s.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", s.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", s.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", s.P99Latency)

	if len(s.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		writeRows(w, metrics.SortedRows(s.StatusCodes))
	}
	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		writeRows(w, metrics.SortedRows(s.Errors))
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s metrics.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, s metrics.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// PrintThresholds lists every threshold result and a pass/fail line.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	failed := 0
	for _, r := range results {
		if !r.Pass {
			failed++
		}
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	if failed == 0 {
		fmt.Fprintf(w, "\nAll %d thresholds passed\n", len(results))
		return
	}
	fmt.Fprintf(w, "\n%d of %d thresholds failed\n", failed, len(results))
}

func writeRows(w io.Writer, rows []metrics.Row) {
	for _, row := range rows {
		printer.Fprintf(w, "  %s: %d\n", row.Label, row.Count)
	}
}
