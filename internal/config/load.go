package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	// DefaultInferRows is the inference sample size when infer.rows is unset.
	DefaultInferRows = 10000
	// DefaultTopK is the number of most frequent values per column.
	DefaultTopK = 5
	// DefaultNullPctDecimals is the rounding of null percentages.
	DefaultNullPctDecimals = 2
)

// Load reads and decodes a job file.
func Load(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("open job %s: %w", path, err)
	}
	defer f.Close()
	j, err := Decode(f)
	if err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", path, err)
	}
	return j, nil
}

// Decode decodes a job from r. Unknown fields are rejected so typos in a job
// file surface early.
func Decode(r io.Reader) (Job, error) {
	var j Job
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&j); err != nil {
		return Job{}, err
	}
	if j.Parser.Options == nil {
		j.Parser.Options = Options{}
	}
	return j, nil
}

// InferRows returns the inference sample size: DefaultInferRows when unset,
// zero for a full buffer.
func (j Job) InferRows() int {
	if j.Infer.Rows == nil {
		return DefaultInferRows
	}
	return *j.Infer.Rows
}

// TopK returns the configured top-K size or DefaultTopK.
func (j Job) TopK() int {
	if j.Stats.TopK > 0 {
		return j.Stats.TopK
	}
	return DefaultTopK
}

// NullPctDecimals returns the configured rounding or DefaultNullPctDecimals.
func (j Job) NullPctDecimals() int {
	if j.Stats.NullPctDecimals == nil {
		return DefaultNullPctDecimals
	}
	return *j.Stats.NullPctDecimals
}

// InputPath returns the path of a file source.
func (j Job) InputPath() string { return j.Source.File.Path }
