// Package report assembles the finalized statistics of a scan into an
// immutable Report and encodes it as JSON.
package report

import (
	"fmt"
	"slices"
	"time"

	"statscan/internal/group"
	"statscan/internal/schema"
	"statscan/internal/stats"
)

// Meta identifies one run. It is excluded from comparisons between runs.
type Meta struct {
	RunID     string        `json:"run_id"`
	Job       string        `json:"job"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
}

// Column is the finalized summary of one header column. Exactly one of
// Numeric, Categorical and Nested is set, matching Kind.
type Column struct {
	Name        string                  `json:"name"`
	Normalized  string                  `json:"normalized"`
	Kind        string                  `json:"kind"`
	Nullable    bool                    `json:"nullable"`
	Count       int64                   `json:"count"`
	NullCount   int64                   `json:"null_count"`
	NullPct     float64                 `json:"null_pct"`
	Numeric     *stats.NumericStats     `json:"numeric,omitempty"`
	Categorical *stats.CategoricalStats `json:"categorical,omitempty"`
	Nested      *stats.NestedStats      `json:"nested,omitempty"`
}

// The column constructors mark a column nullable when the inference sample
// saw a missing value or the full scan counted one.

// NumericColumn wraps finalized numeric stats for c.
func NumericColumn(c schema.Column, st stats.NumericStats) Column {
	return Column{
		Name: c.Name, Normalized: c.Normalized, Kind: schema.Numeric.String(), Nullable: c.Nullable || st.NullCount > 0,
		Count: st.Count, NullCount: st.NullCount, NullPct: st.NullPct,
		Numeric: &st,
	}
}

// CategoricalColumn wraps finalized categorical stats for c.
func CategoricalColumn(c schema.Column, st stats.CategoricalStats) Column {
	return Column{
		Name: c.Name, Normalized: c.Normalized, Kind: schema.Categorical.String(), Nullable: c.Nullable || st.NullCount > 0,
		Count: st.Count, NullCount: st.NullCount, NullPct: st.NullPct,
		Categorical: &st,
	}
}

// NestedColumn wraps finalized nested stats for c.
func NestedColumn(c schema.Column, st stats.NestedStats) Column {
	return Column{
		Name: c.Name, Normalized: c.Normalized, Kind: schema.Nested.String(), Nullable: c.Nullable || st.NullCount > 0,
		Count: st.Count, NullCount: st.NullCount, NullPct: st.NullPct,
		Nested: &st,
	}
}

// Dataset summarizes the whole input.
type Dataset struct {
	// TotalRows counts every data row read, including dropped ones.
	TotalRows int64 `json:"total_rows"`
	// Rows counts the rows fed to the accumulators.
	Rows         int64   `json:"rows"`
	Columns      int     `json:"columns"`
	InferRows    int     `json:"infer_rows"`
	TotalCells   int64   `json:"total_cells"`
	MissingCells int64   `json:"missing_cells"`
	Completeness float64 `json:"completeness_pct"`
}

// DiagnosticsSection is the diagnostics block of a Report.
type DiagnosticsSection struct {
	DroppedRows int64   `json:"dropped_row_count"`
	TotalRows   int64   `json:"total_rows"`
	Issues      []Issue `json:"issues"`
}

// Report is the immutable result of one scan. Accessors return copies.
type Report struct {
	meta        Meta
	columns     []Column
	groupings   []group.Result
	dataset     Dataset
	diagnostics DiagnosticsSection
}

// Meta returns the run identification.
func (r *Report) Meta() Meta { return r.meta }

// Columns returns the column summaries in header order.
func (r *Report) Columns() []Column { return slices.Clone(r.columns) }

// Column looks up a column summary by header name.
func (r *Report) Column(name string) (Column, bool) {
	for _, c := range r.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Groupings returns the grouping results in configuration order.
func (r *Report) Groupings() []group.Result { return slices.Clone(r.groupings) }

// Grouping looks up a grouping by name.
func (r *Report) Grouping(name string) (group.Result, bool) {
	for _, g := range r.groupings {
		if g.Name == name {
			return g, true
		}
	}
	return group.Result{}, false
}

// Dataset returns the dataset summary.
func (r *Report) Dataset() Dataset { return r.dataset }

// Diagnostics returns the diagnostics block.
func (r *Report) Diagnostics() DiagnosticsSection {
	d := r.diagnostics
	d.Issues = slices.Clone(d.Issues)
	return d
}

// Builder collects finalized parts and produces a Report once.
type Builder struct {
	meta      Meta
	columns   []Column
	groupings []group.Result
	dataset   Dataset
	diags     *Diagnostics
	decimals  int
	built     bool
}

// NewBuilder starts a report. diags may be nil. decimals is the rounding
// used for completeness.
func NewBuilder(meta Meta, diags *Diagnostics, decimals int) *Builder {
	if diags == nil {
		diags = NewDiagnostics(DefaultExampleLimit)
	}
	return &Builder{meta: meta, diags: diags, decimals: decimals}
}

// AddColumn appends a column summary. Columns must be added in header order.
func (b *Builder) AddColumn(c Column) { b.columns = append(b.columns, c) }

// AddGrouping appends a finalized grouping.
func (b *Builder) AddGrouping(g group.Result) { b.groupings = append(b.groupings, g) }

// SetRows records the row accounting: total data rows read, rows fed to
// accumulators and rows sampled for inference.
func (b *Builder) SetRows(total, rows int64, inferRows int) {
	b.dataset.TotalRows = total
	b.dataset.Rows = rows
	b.dataset.InferRows = inferRows
}

// Build derives the dataset summary, adds the flag-based diagnostics
// (empty columns, capacity and overflow) and returns the Report.
func (b *Builder) Build() (*Report, error) {
	if b.built {
		return nil, fmt.Errorf("report already built")
	}
	b.built = true

	ds := b.dataset
	ds.Columns = len(b.columns)
	ds.TotalCells = ds.Rows * int64(len(b.columns))
	for _, c := range b.columns {
		ds.MissingCells += c.NullCount
		if ds.Rows > 0 && c.Count == 0 {
			b.diags.AddCount(c.Name, KindEmptyColumn, c.NullCount)
		}
		switch {
		case c.Numeric != nil:
			if c.Numeric.Degraded {
				b.diags.Add(c.Name, KindCapacity, "median buffer limit exceeded")
			}
			if c.Numeric.Overflow {
				b.diags.Add(c.Name, KindOverflow, "running sum or variance is not finite")
			}
		case c.Categorical != nil:
			if c.Categorical.Degraded {
				b.diags.Add(c.Name, KindCapacity, "distinct value limit exceeded")
			}
		case c.Nested != nil:
			if c.Nested.Overflow {
				b.diags.Add(c.Name, KindOverflow, "metric total is not finite")
			}
		}
	}
	for _, g := range b.groupings {
		if g.Degraded {
			b.diags.Add("grouping:"+g.Name, KindCapacity, fmt.Sprintf("group limit exceeded: %d groups", g.Summary.Groups))
		}
	}
	if ds.TotalCells > 0 {
		ds.Completeness = stats.Round(100*(1-float64(ds.MissingCells)/float64(ds.TotalCells)), b.decimals)
	}

	r := &Report{
		meta:      b.meta,
		columns:   slices.Clone(b.columns),
		groupings: slices.Clone(b.groupings),
		dataset:   ds,
		diagnostics: DiagnosticsSection{
			DroppedRows: ds.TotalRows - ds.Rows,
			TotalRows:   ds.TotalRows,
			Issues:      b.diags.Issues(),
		},
	}
	return r, nil
}
