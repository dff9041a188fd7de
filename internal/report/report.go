// Package report renders internal/stats.Snapshot values as the human
// readable text summary printed to stdout and the CSV export `cachesim`'s
// `-e/--export` flag writes, per SPEC_FULL.md §6. The text layout follows
// cmd/m2sim/main.go's `fmt.Printf`-based timing report exactly: a labeled
// header block followed by an indented, percentage-annotated breakdown.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/sarchlab/cachesim/internal/stats"
)

// Level names one row of a report: a cache level's label and its snapshot.
type Level struct {
	Name string
	Snapshot stats.Snapshot
}

// WriteText prints a labeled report for every level in order, in the
// teacher's indented-breakdown style.
func WriteText(w io.Writer, levels []Level) {
	for _, lvl := range levels {
		s := lvl.Snapshot
		fmt.Fprintf(w, "%s:\n", lvl.Name)
		fmt.Fprintf(w, "  Reads:      %d\n", s.Reads)
		fmt.Fprintf(w, "  Writes:     %d\n", s.Writes)
		fmt.Fprintf(w, "  Accesses:   %d\n", s.Accesses())
		fmt.Fprintf(w, "  Hits:       %d (%5.1f%%)\n", s.Hits, 100*s.HitRate())
		fmt.Fprintf(w, "  Misses:     %d (%5.1f%%)\n", s.Misses, 100*s.MissRate())
		fmt.Fprintf(w, "  Evictions:  %d\n", s.Evictions)
		fmt.Fprintf(w, "  Writebacks: %d\n", s.Writebacks)
		if s.PrefetchInstalls > 0 {
			fmt.Fprintf(w, "  Prefetches: %d installed, %d hit (%5.1f%% accuracy)\n",
				s.PrefetchInstalls, s.PrefetchHits, 100*s.PrefetchAccuracy())
		}
		fmt.Fprintf(w, "\n")
	}
}

var csvHeader = []string{
	"level", "reads", "writes", "hits", "misses", "hit_rate",
	"evictions", "writebacks", "prefetch_installs", "prefetch_hits",
}

// WriteCSV writes one header row followed by one row per level, for the
// `-e/--export` flag's machine-readable output.
func WriteCSV(w io.Writer, levels []Level) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("report: failed to write csv header: %w", err)
	}

	for _, lvl := range levels {
		s := lvl.Snapshot
		row := []string{
			lvl.Name,
			strconv.FormatUint(s.Reads, 10),
			strconv.FormatUint(s.Writes, 10),
			strconv.FormatUint(s.Hits, 10),
			strconv.FormatUint(s.Misses, 10),
			strconv.FormatFloat(s.HitRate(), 'f', 4, 64),
			strconv.FormatUint(s.Evictions, 10),
			strconv.FormatUint(s.Writebacks, 10),
			strconv.FormatUint(s.PrefetchInstalls, 10),
			strconv.FormatUint(s.PrefetchHits, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: failed to write csv row for %s: %w", lvl.Name, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// Bar renders a plain-text horizontal bar of the given fraction (0..1) over
// width characters, for the `--vis/--charts` flag's ASCII hit-rate chart.
func Bar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction*float64(width) + 0.5)
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return string(bar)
}

// WriteChart prints one hit-rate bar per level, labeled and percentage
// annotated.
func WriteChart(w io.Writer, levels []Level, width int) {
	for _, lvl := range levels {
		rate := lvl.Snapshot.HitRate()
		fmt.Fprintf(w, "%-8s [%s] %5.1f%%\n", lvl.Name, Bar(rate, width), 100*rate)
	}
}
