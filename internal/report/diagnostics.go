package report

import (
	"cmp"
	"slices"
	"sync"
)

// Kind classifies a diagnostic.
type Kind string

const (
	KindParseError   Kind = "parse_error"
	KindSchemaError  Kind = "schema_error"
	KindTypeCoercion Kind = "type_coercion"
	KindCapacity     Kind = "capacity"
	KindEmptyColumn  Kind = "empty_column"
	KindOverflow     Kind = "overflow"
)

// DefaultExampleLimit is the number of example messages kept per issue.
const DefaultExampleLimit = 3

// Issue aggregates every occurrence of one kind of problem on one column.
// Column is empty for row-level issues (parse and schema errors).
type Issue struct {
	Column   string   `json:"column,omitempty"`
	Kind     Kind     `json:"kind"`
	Count    int64    `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

type issueKey struct {
	column string
	kind   Kind
}

// Diagnostics collects issues during a scan. Each (column, kind) pair keeps
// a running count and the first few example messages.
type Diagnostics struct {
	mu     sync.Mutex
	limit  int
	issues map[issueKey]*Issue
}

// NewDiagnostics returns an empty collector keeping up to limit examples
// per issue.
func NewDiagnostics(limit int) *Diagnostics {
	if limit < 0 {
		limit = 0
	}
	return &Diagnostics{limit: limit, issues: make(map[issueKey]*Issue)}
}

// Add records one occurrence. An empty example is counted but not kept.
func (d *Diagnostics) Add(column string, kind Kind, example string) {
	d.mu.Lock()
	is := d.get(column, kind)
	is.Count++
	if example != "" && len(is.Examples) < d.limit {
		is.Examples = append(is.Examples, example)
	}
	d.mu.Unlock()
}

// AddCount records n occurrences without examples.
func (d *Diagnostics) AddCount(column string, kind Kind, n int64) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	d.get(column, kind).Count += n
	d.mu.Unlock()
}

func (d *Diagnostics) get(column string, kind Kind) *Issue {
	k := issueKey{column, kind}
	is, ok := d.issues[k]
	if !ok {
		is = &Issue{Column: column, Kind: kind}
		d.issues[k] = is
	}
	return is
}

// Merge folds o into d. Examples from o fill remaining slots in order.
func (d *Diagnostics) Merge(o *Diagnostics) {
	if o == nil || o == d {
		return
	}
	for _, src := range o.Issues() {
		d.mu.Lock()
		is := d.get(src.Column, src.Kind)
		is.Count += src.Count
		for _, ex := range src.Examples {
			if len(is.Examples) >= d.limit {
				break
			}
			is.Examples = append(is.Examples, ex)
		}
		d.mu.Unlock()
	}
}

// Count returns the total count recorded for kind across all columns.
func (d *Diagnostics) Count(kind Kind) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for k, is := range d.issues {
		if k.kind == kind {
			n += is.Count
		}
	}
	return n
}

// Issues returns a copy of the collected issues sorted by column, then kind.
func (d *Diagnostics) Issues() []Issue {
	d.mu.Lock()
	out := make([]Issue, 0, len(d.issues))
	for _, is := range d.issues {
		c := *is
		c.Examples = slices.Clone(is.Examples)
		out = append(out, c)
	}
	d.mu.Unlock()
	slices.SortFunc(out, func(a, b Issue) int {
		if c := cmp.Compare(a.Column, b.Column); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return out
}
