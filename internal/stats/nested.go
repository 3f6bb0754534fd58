package stats

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultNestedMetrics are summed across the inner objects of a nested
// column when no metric list is configured.
var DefaultNestedMetrics = []string{"spend", "impressions"}

// ErrNotObject is returned by Nested.Add when a value parses but is not a
// key -> object mapping.
var ErrNotObject = errors.New("nested value is not an object")

// NestedOptions configures a nested column.
type NestedOptions struct {
	// Metrics are the inner keys summed into per-column totals.
	Metrics []string
	// RankBy is the inner key used to pick the top outer key of each value.
	// Empty means the first metric.
	RankBy string
}

// Nested accumulates a column of dict-literal values such as
// {'US': {'spend': 10, 'impressions': 200}, 'CA': {...}}. Values may use
// Python literal syntax (single quotes, None, True, False).
type Nested struct {
	count    int64
	nulls    int64
	metrics  []string
	paths    []jp.Expr
	rankBy   string
	totals   []float64
	top      map[string]int64
	entries  int64
	failures int64
}

// NewNested returns an empty nested accumulator.
func NewNested(opt NestedOptions) *Nested {
	metrics := opt.Metrics
	if len(metrics) == 0 {
		metrics = DefaultNestedMetrics
	}
	rank := opt.RankBy
	if rank == "" {
		rank = metrics[0]
	}
	paths := make([]jp.Expr, len(metrics))
	for i, m := range metrics {
		paths[i] = jp.R().Wildcard().Child(m)
	}
	return &Nested{
		metrics: append([]string(nil), metrics...),
		paths:   paths,
		rankBy:  rank,
		totals:  make([]float64, len(metrics)),
		top:     make(map[string]int64),
	}
}

// Add parses raw and folds it in. On error the value is not counted; the
// caller records it as missing.
func (a *Nested) Add(raw string) error {
	data, err := oj.ParseString(pyLiteralToJSON(raw))
	if err != nil {
		a.failures++
		return fmt.Errorf("parse nested value: %w", err)
	}
	obj, ok := data.(map[string]any)
	if !ok {
		a.failures++
		return ErrNotObject
	}
	a.count++
	a.entries += int64(len(obj))
	for i, p := range a.paths {
		for _, v := range p.Get(obj) {
			if f, ok := toFloat(v); ok {
				a.totals[i] += f
			}
		}
	}
	if k, ok := topKey(obj, a.rankBy); ok {
		a.top[k]++
	}
	return nil
}

// AddMissing records one missing value.
func (a *Nested) AddMissing() { a.nulls++ }

// Merge folds b into a. Both must have been built with the same options.
func (a *Nested) Merge(b *Nested) {
	if b == nil {
		return
	}
	a.count += b.count
	a.nulls += b.nulls
	a.entries += b.entries
	a.failures += b.failures
	for i := range a.totals {
		a.totals[i] += b.totals[i]
	}
	for k, n := range b.top {
		a.top[k] += n
	}
}

// Count returns the number of successfully parsed values.
func (a *Nested) Count() int64 { return a.count }

// NullCount returns the number of missing values.
func (a *Nested) NullCount() int64 { return a.nulls }

// Failures returns the number of values that could not be parsed.
func (a *Nested) Failures() int64 { return a.failures }

// MetricTotal is the sum of one inner metric over a nested column.
type MetricTotal struct {
	Metric string   `json:"metric"`
	Total  *float64 `json:"total"`
}

// NestedStats is the finalized summary of a nested column.
type NestedStats struct {
	Count        int64         `json:"count"`
	NullCount    int64         `json:"null_count"`
	NullPct      float64       `json:"null_pct"`
	Totals       []MetricTotal `json:"totals"`
	AvgEntries   *float64      `json:"avg_entries"`
	RankBy       string        `json:"rank_by"`
	TopKey       *string       `json:"top_key"`
	TopKeyCounts []Freq        `json:"top_keys"`
	Overflow     bool          `json:"overflow,omitempty"`
}

// Finalize derives metric totals and the most frequent top-ranked keys.
func (a *Nested) Finalize(topK, decimals int) NestedStats {
	st := NestedStats{
		Count:        a.count,
		NullCount:    a.nulls,
		NullPct:      NullPct(a.nulls, a.count+a.nulls, decimals),
		RankBy:       a.rankBy,
		Totals:       make([]MetricTotal, len(a.metrics)),
		TopKeyCounts: []Freq{},
	}
	for i, m := range a.metrics {
		st.Totals[i] = MetricTotal{Metric: m, Total: finite(a.totals[i])}
		if st.Totals[i].Total == nil {
			st.Overflow = true
		}
	}
	if a.count > 0 {
		st.AvgEntries = ptr(float64(a.entries) / float64(a.count))
	}
	ranked := RankFreq(a.top)
	if len(ranked) > 0 {
		k := ranked[0].Value
		st.TopKey = &k
	}
	if topK >= 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	st.TopKeyCounts = ranked
	return st
}

// topKey returns the outer key whose inner rankBy value is largest. Ties go
// to the lexicographically smallest key.
func topKey(obj map[string]any, rankBy string) (string, bool) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmp.Compare[string])

	var (
		best  string
		bestV float64
		found bool
	)
	for _, k := range keys {
		inner, ok := obj[k].(map[string]any)
		if !ok {
			continue
		}
		v, ok := toFloat(inner[rankBy])
		if !ok {
			continue
		}
		if !found || v > bestV {
			best, bestV, found = k, v, true
		}
	}
	return best, found
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// pyLiteralToJSON rewrites a Python dict literal into JSON: single-quoted
// strings become double-quoted and the bare words None, True and False
// become null, true and false. Valid JSON passes through unchanged.
func pyLiteralToJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case c == '\\' && i+1 < len(s):
				if s[i+1] == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte(c)
					b.WriteByte(s[i+1])
				}
				i++
			case c == quote:
				b.WriteByte('"')
				quote = 0
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			b.WriteByte('"')
			continue
		}
		if isIdentStart(c) {
			j := i
			for j < len(s) && isIdentStart(s[j]) {
				j++
			}
			switch w := s[i:j]; w {
			case "None":
				b.WriteString("null")
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			default:
				b.WriteString(w)
			}
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
