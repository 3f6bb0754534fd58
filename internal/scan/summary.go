package scan

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"statscan/internal/report"
)

// logSummary prints the end-of-run accounting and the first examples of
// each diagnostic.
//
// Invariant for data rows (excluding the header):
//
//	rows + dropped == total_rows
func logSummary(r *report.Report, dropped, batches int64, elapsed time.Duration) {
	ds := r.Dataset()
	dg := r.Diagnostics()

	rate := float64(0)
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(ds.TotalRows) / s
	}
	log.Printf(
		"summary: total_rows=%s rows=%s dropped=%s batches=%d columns=%d groupings=%d completeness=%.2f%% elapsed=%s rate=%s rows/s",
		humanize.Comma(ds.TotalRows),
		humanize.Comma(ds.Rows),
		humanize.Comma(dropped),
		batches,
		ds.Columns,
		len(r.Groupings()),
		ds.Completeness,
		elapsed.Truncate(time.Millisecond),
		humanize.CommafWithDigits(rate, 0),
	)

	if accounted := ds.Rows + dropped; accounted != ds.TotalRows {
		log.Printf(
			"WARNING: row accounting mismatch: total=%d accounted=%d (delta=%d)",
			ds.TotalRows,
			accounted,
			ds.TotalRows-accounted,
		)
	}

	for _, is := range dg.Issues {
		col := is.Column
		if col == "" {
			col = "-"
		}
		log.Printf("diagnostic: %s %s count=%s", col, is.Kind, humanize.Comma(is.Count))
		for i, ex := range is.Examples {
			log.Printf("  #%03d: %s", i+1, ex)
		}
	}
}
