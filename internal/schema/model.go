// Package schema holds the column model shared by the parser, the
// accumulators and the report: the tagged cell Value, the positional Row,
// column descriptors, and the one-shot type inference that fixes each
// column's Kind for the rest of a scan.
package schema

import "fmt"

// Kind is the inferred type tag of a column.
type Kind uint8

const (
	// Categorical columns are counted by distinct value.
	Categorical Kind = iota
	// Numeric columns are summarized with min/max/mean/median/std.
	Numeric
	// Nested columns hold dict-literal values that are unpacked into metric
	// totals. They are only assigned by configuration, never inferred.
	Nested
)

// String returns the lowercase tag used in reports and sinks.
func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case Nested:
		return "nested"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Tag discriminates the Value variants.
type Tag uint8

const (
	Missing Tag = iota
	Number
	Text
)

// Value is a single routed cell. A Number carries the parsed Num and its
// raw field text in Str; a Text carries only Str; a Missing value carries
// neither. Group keys are built from Str so that numerically equal but
// textually distinct ids ("01", "1", or integers past 2^53) stay apart.
type Value struct {
	Tag Tag
	Num float64
	Str string
}

// MissingValue is the zero Value.
var MissingValue = Value{}

// NumberValue wraps a parsed float and the text it was parsed from.
func NumberValue(f float64, raw string) Value { return Value{Tag: Number, Num: f, Str: raw} }

// TextValue wraps a raw string.
func TextValue(s string) Value { return Value{Tag: Text, Str: s} }

// IsMissing reports whether v is the Missing variant.
func (v Value) IsMissing() bool { return v.Tag == Missing }

// Row is a positional row aligned with the header order.
type Row []Value

// Column describes one header column after inference.
type Column struct {
	// Name is the header text as it appears in the input (BOM stripped).
	Name string
	// Normalized is an ASCII identifier derived from Name, used by sinks.
	Normalized string
	// Index is the position in the header.
	Index int
	// Kind is fixed once by Infer and never re-evaluated.
	Kind Kind
	// Nullable records whether any Missing value was seen while sampling.
	Nullable bool
}
