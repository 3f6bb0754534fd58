package schema

import (
	"math"
	"strconv"
	"strings"
)

// DefaultNumericThreshold is the fraction of sampled non-missing values that
// must parse as numbers for a column to be classified Numeric.
const DefaultNumericThreshold = 0.90

// InferOptions controls the classification rule.
type InferOptions struct {
	// NumericThreshold in (0,1]; zero means DefaultNumericThreshold.
	NumericThreshold float64
	// Nested names header columns that hold dict-literal values. They bypass
	// inference and are tagged Nested.
	Nested []string
}

// colSample is the running tally for one column during sampling.
type colSample struct {
	nonMissing int
	numeric    int
	sawMissing bool
}

// Inferencer tallies sampled rows and decides every column's Kind once.
// Classification depends only on the multiset of observed values, so the
// decision is identical for identical input regardless of row order.
type Inferencer struct {
	headers   []string
	threshold float64
	nested    map[string]struct{}
	cols      []colSample
	rows      int
}

// NewInferencer prepares an Inferencer for the given header.
func NewInferencer(headers []string, opt InferOptions) *Inferencer {
	th := opt.NumericThreshold
	if th <= 0 || th > 1 {
		th = DefaultNumericThreshold
	}
	nested := make(map[string]struct{}, len(opt.Nested))
	for _, n := range opt.Nested {
		nested[n] = struct{}{}
	}
	return &Inferencer{
		headers:   append([]string(nil), headers...),
		threshold: th,
		nested:    nested,
		cols:      make([]colSample, len(headers)),
	}
}

// Observe tallies one sampled row. fields and missing are aligned with the
// header; rows of a different width are ignored.
func (in *Inferencer) Observe(fields []string, missing []bool) {
	if len(fields) != len(in.cols) || len(missing) != len(in.cols) {
		return
	}
	in.rows++
	for i, f := range fields {
		c := &in.cols[i]
		if missing[i] {
			c.sawMissing = true
			continue
		}
		c.nonMissing++
		if _, ok := ParseNumber(f); ok {
			c.numeric++
		}
	}
}

// Rows returns the number of sampled rows observed so far.
func (in *Inferencer) Rows() int { return in.rows }

// Schema fixes the Kind of every column from the tallies observed so far.
func (in *Inferencer) Schema() *Schema {
	cols := make([]Column, len(in.headers))
	names := NormalizeNames(in.headers)
	for i, h := range in.headers {
		c := in.cols[i]
		cols[i] = Column{
			Name:       h,
			Normalized: names[i],
			Index:      i,
			Kind:       in.classify(h, c),
			Nullable:   c.sawMissing,
		}
	}
	return &Schema{Columns: cols}
}

func (in *Inferencer) classify(name string, c colSample) Kind {
	if _, ok := in.nested[name]; ok {
		return Nested
	}
	if c.nonMissing == 0 {
		return Categorical
	}
	if float64(c.numeric)/float64(c.nonMissing) >= in.threshold {
		return Numeric
	}
	return Categorical
}

// ParseNumber parses a decimal or scientific-notation float. Infinities and
// NaN are rejected so they never reach a numeric accumulator.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Schema is the fixed per-column typing for one scan.
type Schema struct {
	Columns []Column
}

// Width returns the number of columns.
func (s *Schema) Width() int { return len(s.Columns) }

// Lookup returns the index of the column named name, or -1.
func (s *Schema) Lookup(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Route converts raw fields into tagged Values using the fixed column Kinds,
// writing into dst (grown if needed). A value that fails to parse in a
// Numeric column becomes Missing and onCoerce is called with its column
// index and raw text.
func (s *Schema) Route(fields []string, missing []bool, dst Row, onCoerce func(col int, raw string)) Row {
	if cap(dst) < len(s.Columns) {
		dst = make(Row, len(s.Columns))
	}
	dst = dst[:len(s.Columns)]
	for i, c := range s.Columns {
		if i >= len(fields) || missing[i] {
			dst[i] = MissingValue
			continue
		}
		raw := fields[i]
		switch c.Kind {
		case Numeric:
			f, ok := ParseNumber(raw)
			if !ok {
				dst[i] = MissingValue
				if onCoerce != nil {
					onCoerce(i, raw)
				}
				continue
			}
			dst[i] = NumberValue(f, raw)
		default:
			dst[i] = TextValue(raw)
		}
	}
	return dst
}
