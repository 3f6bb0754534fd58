package storage

import (
	"context"
	"fmt"
	"sync"
)

// ColumnType is a backend-neutral column type; each dialect maps it to SQL.
type ColumnType uint8

const (
	TypeText ColumnType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
)

// ColumnDef is one destination column. All report columns are nullable.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// TableDef describes one report table. Name may be schema-qualified.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// ColumnNames returns the column names in order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// RunTable holds one row per scan: dataset summary and diagnostics.
func RunTable(prefix string) TableDef {
	return TableDef{Name: prefix + "runs", Columns: []ColumnDef{
		{"run_id", TypeText},
		{"job", TypeText},
		{"source", TypeText},
		{"started_at", TypeTime},
		{"total_rows", TypeInt},
		{"row_count", TypeInt},
		{"dropped_rows", TypeInt},
		{"column_count", TypeInt},
		{"missing_cells", TypeInt},
		{"completeness_pct", TypeFloat},
		{"issues", TypeText},
	}}
}

// ColumnStatsTable holds one row per input column.
func ColumnStatsTable(prefix string) TableDef {
	return TableDef{Name: prefix + "column_stats", Columns: []ColumnDef{
		{"run_id", TypeText},
		{"position", TypeInt},
		{"column_name", TypeText},
		{"normalized", TypeText},
		{"kind", TypeText},
		{"nullable", TypeBool},
		{"value_count", TypeInt},
		{"null_count", TypeInt},
		{"null_pct", TypeFloat},
		{"unique_count", TypeInt},
		{"mode", TypeText},
		{"mode_count", TypeInt},
		{"min_value", TypeFloat},
		{"max_value", TypeFloat},
		{"mean", TypeFloat},
		{"median", TypeFloat},
		{"std", TypeFloat},
		{"q1", TypeFloat},
		{"q3", TypeFloat},
		{"sum_value", TypeFloat},
		{"top_k", TypeText},
		{"totals", TypeText},
		{"degraded", TypeBool},
	}}
}

// GroupStatsTable holds one row per group and numeric target. Groups without
// targets get a single row with empty target columns.
func GroupStatsTable(prefix string) TableDef {
	return TableDef{Name: prefix + "group_stats", Columns: []ColumnDef{
		{"run_id", TypeText},
		{"grouping", TypeText},
		{"group_rank", TypeInt},
		{"group_label", TypeText},
		{"group_key", TypeText},
		{"group_count", TypeInt},
		{"missing_key", TypeBool},
		{"target", TypeText},
		{"value_count", TypeInt},
		{"null_count", TypeInt},
		{"min_value", TypeFloat},
		{"max_value", TypeFloat},
		{"mean", TypeFloat},
		{"median", TypeFloat},
		{"std", TypeFloat},
		{"sum_value", TypeFloat},
	}}
}

// ReportTables returns every table a report is published into.
func ReportTables(prefix string) []TableDef {
	return []TableDef{RunTable(prefix), ColumnStatsTable(prefix), GroupStatsTable(prefix)}
}

// DDLBuilder renders a CREATE TABLE IF NOT EXISTS statement for one dialect.
type DDLBuilder func(t TableDef) (string, error)

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBuilder{}
)

// RegisterDDL registers (or replaces) the DDL builder for kind. Backends call
// it from init next to Register.
func RegisterDDL(kind string, fn DDLBuilder) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// BuildDDL renders t with the builder registered for kind.
func BuildDDL(kind string, t TableDef) (string, error) {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no DDL builder registered for storage.kind=%q", kind)
	}
	return fn(t)
}

// EnsureTables creates every table in defs that does not exist yet.
func EnsureTables(ctx context.Context, kind string, repo Repository, defs ...TableDef) error {
	for _, t := range defs {
		sql, err := BuildDDL(kind, t)
		if err != nil {
			return err
		}
		if err := repo.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}
