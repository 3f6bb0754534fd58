package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"statscan/internal/report"
)

// PublishOptions controls where a report is written.
type PublishOptions struct {
	// Kind selects the DDL dialect when AutoCreate is set.
	Kind        string
	TablePrefix string
	AutoCreate  bool
}

// Publish writes r into the run, column and group tables. Each table is
// written with one CopyFrom call. It returns the total number of rows
// written.
func Publish(ctx context.Context, repo Repository, r *report.Report, opt PublishOptions) (int64, error) {
	tables := ReportTables(opt.TablePrefix)
	if opt.AutoCreate {
		if err := EnsureTables(ctx, opt.Kind, repo, tables...); err != nil {
			return 0, fmt.Errorf("apply DDL: %w", err)
		}
	}

	cols, err := ColumnRows(r)
	if err != nil {
		return 0, err
	}
	groups, err := GroupRows(r)
	if err != nil {
		return 0, err
	}
	run, err := RunRow(r)
	if err != nil {
		return 0, err
	}

	var total int64
	for i, rows := range [][][]any{{run}, cols, groups} {
		if len(rows) == 0 {
			continue
		}
		t := tables[i]
		n, err := repo.CopyFrom(ctx, t.Name, t.ColumnNames(), rows)
		if err != nil {
			return total, fmt.Errorf("copy into %s: %w", t.Name, err)
		}
		log.Printf("sink: table=%s rows=%d", t.Name, n)
		total += n
	}
	return total, nil
}

// RunRow flattens the dataset summary into a RunTable row.
func RunRow(r *report.Report) ([]any, error) {
	m, ds, dg := r.Meta(), r.Dataset(), r.Diagnostics()
	issues := dg.Issues
	if issues == nil {
		issues = []report.Issue{}
	}
	js, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("encode issues: %w", err)
	}
	return []any{
		m.RunID, m.Job, m.Source, m.StartedAt,
		ds.TotalRows, ds.Rows, dg.DroppedRows, int64(ds.Columns), ds.MissingCells, ds.Completeness,
		string(js),
	}, nil
}

// ColumnRows flattens every column into ColumnStatsTable rows. Statistics
// that do not apply to a column's kind, or are undefined, are NULL.
func ColumnRows(r *report.Report) ([][]any, error) {
	runID := r.Meta().RunID
	cols := r.Columns()
	out := make([][]any, 0, len(cols))
	for i, c := range cols {
		var unique, mode, modeCount, topK, totals any
		var minV, maxV, mean, median, std, q1, q3, sum any
		var degraded bool
		switch {
		case c.Numeric != nil:
			n := c.Numeric
			minV, maxV, mean, median = f64(n.Min), f64(n.Max), f64(n.Mean), f64(n.Median)
			std, q1, q3, sum = f64(n.Std), f64(n.Q1), f64(n.Q3), f64(n.Sum)
			degraded = n.Degraded || n.Overflow
		case c.Categorical != nil:
			cs := c.Categorical
			unique = int64(cs.UniqueCount)
			if cs.Mode != nil {
				mode, modeCount = *cs.Mode, cs.ModeCount
			}
			js, err := json.Marshal(cs.TopK)
			if err != nil {
				return nil, fmt.Errorf("encode top_k for %s: %w", c.Name, err)
			}
			topK = string(js)
			degraded = cs.Degraded
		case c.Nested != nil:
			ns := c.Nested
			if ns.TopKey != nil {
				mode = *ns.TopKey
			}
			js, err := json.Marshal(ns.TopKeyCounts)
			if err != nil {
				return nil, fmt.Errorf("encode top keys for %s: %w", c.Name, err)
			}
			topK = string(js)
			tj, err := json.Marshal(ns.Totals)
			if err != nil {
				return nil, fmt.Errorf("encode totals for %s: %w", c.Name, err)
			}
			totals = string(tj)
			degraded = ns.Overflow
		}
		out = append(out, []any{
			runID, int64(i), c.Name, c.Normalized, c.Kind, c.Nullable,
			c.Count, c.NullCount, c.NullPct,
			unique, mode, modeCount,
			minV, maxV, mean, median, std, q1, q3, sum,
			topK, totals, degraded,
		})
	}
	return out, nil
}

// GroupRows flattens every grouping into GroupStatsTable rows.
func GroupRows(r *report.Report) ([][]any, error) {
	runID := r.Meta().RunID
	var out [][]any
	for _, g := range r.Groupings() {
		for rank, gr := range g.Groups {
			key, err := json.Marshal(gr.Key)
			if err != nil {
				return nil, fmt.Errorf("encode key for %s: %w", g.Name, err)
			}
			head := []any{runID, g.Name, int64(rank + 1), gr.Label, string(key), gr.Count, gr.MissingKey}
			if len(gr.Targets) == 0 {
				out = append(out, append(head, nil, nil, nil, nil, nil, nil, nil, nil, nil))
				continue
			}
			for _, t := range gr.Targets {
				s := t.Stats
				row := append([]any(nil), head...)
				out = append(out, append(row,
					t.Column, s.Count, s.NullCount,
					f64(s.Min), f64(s.Max), f64(s.Mean), f64(s.Median), f64(s.Std), f64(s.Sum),
				))
			}
		}
	}
	return out, nil
}

// f64 turns an undefined statistic into SQL NULL.
func f64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
