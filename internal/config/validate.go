package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the job (e.g. "groupings[1].keys").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation of a Job. It does not mutate the
// job; callers decide whether warnings are fatal.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics and sink rows will be labeled \"statscan\"",
		})
	}
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validateParser(j.Parser)...)
	issues = append(issues, validateInfer(j.Infer)...)
	issues = append(issues, validateStats(j.Stats)...)
	issues = append(issues, validateGroupings(j.Groupings)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	if j.Deadline < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "deadline",
			Message:  "deadline must not be negative",
		})
	}
	issues = append(issues, validateSink(j.Sink)...)
	issues = append(issues, validateMetrics(j.Metrics)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "file", "":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; only \"file\" is supported", s.Kind),
		})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	if p.Kind != "" && p.Kind != "csv" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q; only \"csv\" is supported", p.Kind),
		})
		return issues
	}

	if d := p.Options.String("delimiter", ","); utf8.RuneCountInString(d) != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.delimiter",
			Message:  fmt.Sprintf("delimiter %q must be exactly one character", d),
		})
	} else if r, _ := utf8.DecodeRuneInString(d); r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.delimiter",
			Message:  fmt.Sprintf("delimiter %q is not allowed", d),
		})
	}

	switch pol := p.Options.String("policy", "skip"); pol {
	case "skip", "fail_fast":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.policy",
			Message:  fmt.Sprintf("unknown policy %q; use \"skip\" or \"fail_fast\"", pol),
		})
	}

	if raw := p.Options.Any("missing_tokens"); raw != nil {
		if _, ok := raw.([]any); !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "parser.options.missing_tokens",
				Message:  "missing_tokens must be an array of strings",
			})
		}
	}
	return issues
}

func validateInfer(in Infer) []Issue {
	var issues []Issue
	if in.Rows != nil && *in.Rows < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "infer.rows",
			Message:  "infer.rows must not be negative (0 buffers the whole input)",
		})
	}
	if in.Rows != nil && *in.Rows == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "infer.rows",
			Message:  "infer.rows=0 buffers the whole input in memory before streaming",
		})
	}
	if in.NumericThreshold < 0 || in.NumericThreshold > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "infer.numeric_threshold",
			Message:  fmt.Sprintf("numeric_threshold=%v must be within (0, 1]", in.NumericThreshold),
		})
	}
	return issues
}

func validateStats(s Stats) []Issue {
	var issues []Issue
	if s.TopK < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "stats.top_k",
			Message:  "top_k must not be negative",
		})
	}
	if s.NullPctDecimals != nil && (*s.NullPctDecimals < 0 || *s.NullPctDecimals > 10) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "stats.null_pct_decimals",
			Message:  "null_pct_decimals must be within [0, 10]",
		})
	}
	for _, lim := range []struct {
		path string
		v    int
	}{
		{"stats.max_median_buffer", s.MaxMedianBuffer},
		{"stats.max_distinct_values", s.MaxDistinctValues},
		{"stats.max_groups", s.MaxGroups},
	} {
		if lim.v < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     lim.path,
				Message:  "limit must not be negative (0 disables it)",
			})
		}
	}
	seen := map[string]bool{}
	for i, n := range s.NestedColumns {
		path := fmt.Sprintf("stats.nested_columns[%d]", i)
		if strings.TrimSpace(n.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  "nested column name must not be empty",
			})
			continue
		}
		if seen[n.Name] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("nested column %q listed twice", n.Name),
			})
		}
		seen[n.Name] = true
	}
	return issues
}

func validateGroupings(gs []Grouping) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for i, g := range gs {
		path := fmt.Sprintf("groupings[%d]", i)
		if strings.TrimSpace(g.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  "grouping name must not be empty",
			})
		} else if seen[g.Name] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("grouping %q defined twice", g.Name),
			})
		}
		seen[g.Name] = true
		if len(g.Keys) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".keys",
				Message:  "grouping requires at least one key column",
			})
		}
		keys := map[string]bool{}
		for _, k := range g.Keys {
			if keys[k] {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path + ".keys",
					Message:  fmt.Sprintf("key column %q repeated", k),
				})
			}
			keys[k] = true
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}
	return issues
}

func validateSink(s Sink) []Issue {
	var issues []Issue
	switch s.Kind {
	case "", "none":
		return nil
	case "postgres", "mssql", "mysql", "sqlite":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.kind",
			Message:  fmt.Sprintf("unknown sink kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.db.dsn",
			Message:  "sink.db.dsn must not be empty",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus", "prom", "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend without pushgateway_url; STATSCAN_PUSHGATEWAY_URL must be set",
			})
		}
	case "datadog", "dogstatsd":
		if strings.TrimSpace(m.DogStatsDAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.dogstatsd_addr",
				Message:  "datadog backend without dogstatsd_addr; STATSCAN_DOGSTATSD_ADDR must be set",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	return issues
}
