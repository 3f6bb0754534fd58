// Package config defines the JSON job model for a statistics scan. A job file
// names the input, the parser settings, inference and statistics limits, the
// groupings to compute, runtime sizing, and optional report sink and metrics
// backend. Decoding uses encoding/json; parser settings live in a free-form
// Options bag read through typed getters.
//
// Example (trimmed):
//
//	{
//	  "job":      "ads",
//	  "source":   { "kind": "file", "file": { "path": "data/ads.csv" } },
//	  "parser":   { "kind": "csv", "options": { "delimiter": ",", "policy": "skip" } },
//	  "infer":    { "rows": 10000, "numeric_threshold": 0.9 },
//	  "stats":    { "top_k": 5, "nested_columns": [ { "name": "delivery_by_region" } ] },
//	  "groupings":[ { "name": "by_page", "keys": ["page_id"], "targets": ["spend"] } ],
//	  "runtime":  { "workers": 4, "batch_size": 1024 },
//	  "deadline": "10m",
//	  "sink":     { "kind": "sqlite", "db": { "dsn": "file:stats.db", "auto_create_table": true } }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is the top-level object decoded from a job file.
type Job struct {
	// Job names the run; it labels metrics and sink rows.
	Job string `json:"job"`

	Source    Source        `json:"source"`
	Parser    Parser        `json:"parser"`
	Infer     Infer         `json:"infer"`
	Stats     Stats         `json:"stats"`
	Groupings []Grouping    `json:"groupings"`
	Runtime   RuntimeConfig `json:"runtime"`

	// Deadline bounds the whole scan. Zero means no deadline.
	Deadline Duration `json:"deadline"`

	Sink    Sink    `json:"sink"`
	Metrics Metrics `json:"metrics"`
}

// Source identifies the input. Current kind: "file".
type Source struct {
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// Parser selects how raw bytes become rows. Current kind: "csv".
type Parser struct {
	Kind string `json:"kind"`

	// Options for CSV:
	//   delimiter (string, one rune), trim_space (bool), lazy_quotes (bool),
	//   missing_tokens ([]string), policy ("skip" | "fail_fast")
	Options Options `json:"options"`
}

// Infer controls schema inference.
type Infer struct {
	// Rows is the number of leading data rows sampled. Nil means the default
	// (10000); zero means buffer the whole input before deciding.
	Rows *int `json:"rows"`
	// NumericThreshold is the parsed fraction required for Numeric.
	NumericThreshold float64 `json:"numeric_threshold"`
}

// Stats carries accumulator settings and soft capacity limits.
type Stats struct {
	TopK            int  `json:"top_k"`
	NullPctDecimals *int `json:"null_pct_decimals"`

	MaxMedianBuffer   int `json:"max_median_buffer"`
	MaxDistinctValues int `json:"max_distinct_values"`
	MaxGroups         int `json:"max_groups"`

	NestedColumns []NestedColumn `json:"nested_columns"`
}

// NestedColumn marks a column holding dict-literal values.
type NestedColumn struct {
	Name    string   `json:"name"`
	Metrics []string `json:"metrics"`
	RankBy  string   `json:"rank_by"`
}

// Grouping names one composite-key aggregation.
type Grouping struct {
	Name    string   `json:"name"`
	Keys    []string `json:"keys"`
	Targets []string `json:"targets"`
}

// RuntimeConfig controls parallelism, batching, and channel buffer sizes.
type RuntimeConfig struct {
	Workers       int `json:"workers"`
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Sink selects where the finalized report is persisted. An empty kind
// disables persistence.
type Sink struct {
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig configures a database sink.
type DBConfig struct {
	// DSN is the driver connection string.
	DSN string `json:"dsn"`
	// TablePrefix is prepended to the report tables (e.g., "public.scan_").
	TablePrefix string `json:"table_prefix"`
	// AutoCreateTable creates the report tables when missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Metrics selects the metrics backend: "" / "none", "prometheus" or
// "datadog".
type Metrics struct {
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DogStatsDAddr  string `json:"dogstatsd_addr"`
}

// Duration decodes from a Go duration string ("90s", "5m") or a number of
// seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON encodes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1m30s" style strings, numbers (seconds) and null.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(x * float64(time.Second))
	case string:
		if x == "" {
			*d = 0
			return nil
		}
		dd, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(dd)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal type coercion and returns the provided default
// when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of
// strings. It returns nil when the key is missing or not an array, and a
// non-nil empty slice for an empty array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object to an empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
