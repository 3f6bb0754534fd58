// Package csv decodes headered delimited text into rows of raw fields for the
// statistics engine. It wraps encoding/csv (quoted fields may embed the
// delimiter or line breaks), flags missing entries, and classifies malformed
// rows instead of unwinding: every call to Next yields either a record or a
// row-level issue, and the configured Policy decides whether an issue is
// skipped and counted or returned as a fatal error.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"statscan/internal/schema"
)

// Policy selects how malformed rows are handled.
type Policy string

const (
	// PolicySkip drops malformed rows and counts them (default).
	PolicySkip Policy = "skip"
	// PolicyFailFast aborts on the first malformed row.
	PolicyFailFast Policy = "fail_fast"
)

// DefaultMissingTokens are treated as Missing in addition to the empty string.
var DefaultMissingTokens = []string{"NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// Options configures the Reader. The zero value reads comma-separated input,
// keeps surrounding spaces, uses DefaultMissingTokens and PolicySkip.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune
	// TrimSpace trims leading/trailing white space from every field.
	TrimSpace bool
	// LazyQuotes relaxes quote handling (encoding/csv LazyQuotes).
	LazyQuotes bool
	// MissingTokens replaces DefaultMissingTokens when non-nil. An empty,
	// non-nil slice means only the empty string is Missing.
	MissingTokens []string
	// Policy selects skip-and-count or fail-fast for malformed rows.
	Policy Policy
}

// Record is one decoded data row. Fields and Missing are owned by the Reader
// and are only valid until the next call to Next.
type Record struct {
	// Line is the 1-based input line where the record starts.
	Line int
	// Fields holds the raw values; Missing entries are normalized to "".
	Fields []string
	// Missing flags empty and sentinel values.
	Missing []bool
}

// Result is the outcome of one Next call: a Record, or an Issue (a
// *ParseError or *SchemaError) describing a dropped row.
type Result struct {
	Record Record
	Issue  error
}

// Dropped reports whether the result carries an issue instead of a record.
func (r Result) Dropped() bool { return r.Issue != nil }

// Reader decodes one header row and then a sequence of data rows.
// It is not safe for concurrent use.
type Reader struct {
	cr      *csv.Reader
	opt     Options
	headers []string
	missing map[string]struct{}

	fields []string
	flags  []bool

	total   int64
	dropped int64
}

// NewReader reads the header from r and returns a Reader positioned at the
// first data row. A missing, empty or duplicate-named header is a fatal
// *HeaderError.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	if opt.Policy == "" {
		opt.Policy = PolicySkip
	}
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1 // width is enforced after reading

	tokens := opt.MissingTokens
	if tokens == nil {
		tokens = DefaultMissingTokens
	}
	missing := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		missing[t] = struct{}{}
	}

	rd := &Reader{cr: cr, opt: opt, missing: missing}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	return rd, nil
}

func (rd *Reader) readHeader() error {
	h, err := rd.cr.Read()
	if errors.Is(err, io.EOF) {
		return &HeaderError{Err: ErrEmptyInput}
	}
	if err != nil {
		return &HeaderError{Err: err}
	}
	headers := schema.StripHeaderBOM(append([]string(nil), h...))
	seen := make(map[string]int, len(headers))
	for i, name := range headers {
		name = strings.TrimSpace(name)
		if name == "" {
			return &HeaderError{Err: fmt.Errorf("column %d has an empty name", i+1)}
		}
		if j, dup := seen[name]; dup {
			return &HeaderError{Err: fmt.Errorf("column name %q repeated at positions %d and %d", name, j+1, i+1)}
		}
		seen[name] = i
		headers[i] = name
	}
	rd.headers = headers
	rd.fields = make([]string, len(headers))
	rd.flags = make([]bool, len(headers))
	return nil
}

// Headers returns the header names (trimmed, BOM stripped).
func (rd *Reader) Headers() []string { return rd.headers }

// Total returns the number of data rows seen so far, including dropped rows.
func (rd *Reader) Total() int64 { return rd.total }

// Dropped returns the number of malformed rows skipped so far.
func (rd *Reader) Dropped() int64 { return rd.dropped }

// Next decodes the next data row. It returns io.EOF after the last row.
// Under PolicySkip a malformed row yields a Result with Issue set and a nil
// error; under PolicyFailFast the issue is returned as the error.
func (rd *Reader) Next() (Result, error) {
	rec, err := rd.cr.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, io.EOF
	}
	rd.total++

	if err != nil {
		var pe *csv.ParseError
		if !errors.As(err, &pe) {
			// Not a row-level problem: the source itself failed.
			return Result{}, fmt.Errorf("read csv: %w", err)
		}
		return rd.issue(&ParseError{Line: pe.StartLine, Err: pe.Err})
	}

	line, _ := rd.cr.FieldPos(0)
	if len(rec) != len(rd.headers) {
		return rd.issue(&SchemaError{Line: line, Want: len(rd.headers), Got: len(rec)})
	}

	for i, v := range rec {
		if rd.opt.TrimSpace {
			v = strings.TrimSpace(v)
		}
		miss := v == ""
		if !miss {
			_, miss = rd.missing[v]
		}
		if miss {
			v = ""
		}
		rd.fields[i] = v
		rd.flags[i] = miss
	}
	return Result{Record: Record{Line: line, Fields: rd.fields, Missing: rd.flags}}, nil
}

func (rd *Reader) issue(err error) (Result, error) {
	if rd.opt.Policy == PolicyFailFast {
		return Result{}, err
	}
	rd.dropped++
	return Result{Issue: err}, nil
}
