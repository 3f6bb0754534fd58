package scan

import (
	"fmt"

	"statscan/internal/group"
	"statscan/internal/report"
	"statscan/internal/schema"
	"statscan/internal/stats"
)

// layout is everything a worker needs to build its table: the decided schema,
// per-column accumulator settings and the resolved groupings. It is shared
// read-only by all workers.
type layout struct {
	sch    *schema.Schema
	nested map[int]stats.NestedOptions
	plans  []*group.Plan

	maxMedianBuffer   int
	maxDistinctValues int
	exampleLimit      int
}

// column holds the accumulator matching one column's kind.
type column struct {
	num  *stats.Numeric
	cat  *stats.Categorical
	nest *stats.Nested
}

// table is one worker's private set of accumulators: every column and every
// grouping. Tables are only combined at the merge barrier.
type table struct {
	lay    *layout
	cols   []column
	groups []*group.Aggregator
	diags  *report.Diagnostics
	rows   int64

	row  schema.Row
	line int
}

func newTable(lay *layout) *table {
	t := &table{
		lay:    lay,
		cols:   make([]column, lay.sch.Width()),
		groups: make([]*group.Aggregator, len(lay.plans)),
		diags:  report.NewDiagnostics(lay.exampleLimit),
		row:    make(schema.Row, lay.sch.Width()),
	}
	for i, c := range lay.sch.Columns {
		switch c.Kind {
		case schema.Numeric:
			t.cols[i].num = stats.NewNumeric(lay.maxMedianBuffer)
		case schema.Nested:
			t.cols[i].nest = stats.NewNested(lay.nested[i])
		default:
			t.cols[i].cat = stats.NewCategorical(lay.maxDistinctValues)
		}
	}
	for i, p := range lay.plans {
		t.groups[i] = p.NewAggregator()
	}
	return t
}

// add folds one record into every column and grouping.
func (t *table) add(line int, fields []string, missing []bool) {
	t.line = line
	t.row = t.lay.sch.Route(fields, missing, t.row, t.coerced)
	t.rows++

	for i, v := range t.row {
		c := &t.cols[i]
		switch {
		case c.num != nil:
			if v.Tag == schema.Number {
				c.num.Add(v.Num)
			} else {
				c.num.AddMissing()
			}
		case c.nest != nil:
			if v.IsMissing() {
				c.nest.AddMissing()
				continue
			}
			if err := c.nest.Add(v.Str); err != nil {
				c.nest.AddMissing()
				t.diags.Add(t.lay.sch.Columns[i].Name, report.KindTypeCoercion, fmt.Sprintf("line %d: %v", line, err))
			}
		default:
			if v.IsMissing() {
				c.cat.AddMissing()
			} else {
				c.cat.Add(v.Str)
			}
		}
	}
	for _, g := range t.groups {
		g.Add(t.row)
	}
}

func (t *table) coerced(col int, raw string) {
	t.diags.Add(t.lay.sch.Columns[col].Name, report.KindTypeCoercion,
		fmt.Sprintf("line %d: %q is not a number", t.line, raw))
}

// merge folds o into t. o must not be used afterwards.
func (t *table) merge(o *table) {
	for i := range t.cols {
		a, b := &t.cols[i], &o.cols[i]
		switch {
		case a.num != nil:
			a.num.Merge(b.num)
		case a.nest != nil:
			a.nest.Merge(b.nest)
		default:
			a.cat.Merge(b.cat)
		}
	}
	for i, g := range t.groups {
		g.Merge(o.groups[i])
	}
	t.diags.Merge(o.diags)
	t.rows += o.rows
}

// finalize converts the accumulators into report sections.
func (t *table) finalize(b *report.Builder, topK, decimals int) {
	for i, sc := range t.lay.sch.Columns {
		c := t.cols[i]
		switch {
		case c.num != nil:
			b.AddColumn(report.NumericColumn(sc, c.num.Finalize(decimals)))
		case c.nest != nil:
			b.AddColumn(report.NestedColumn(sc, c.nest.Finalize(topK, decimals)))
		default:
			b.AddColumn(report.CategoricalColumn(sc, c.cat.Finalize(topK, decimals)))
		}
	}
	for _, g := range t.groups {
		b.AddGrouping(g.Finalize(decimals))
	}
}
