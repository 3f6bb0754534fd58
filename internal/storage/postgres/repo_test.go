package postgres

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"statscan/internal/storage"
)

func TestSplitFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want pgx.Identifier
	}{
		{"scan_runs", pgx.Identifier{"scan_runs"}},
		{"public.scan_runs", pgx.Identifier{"public", "scan_runs"}},
		{".scan_runs", pgx.Identifier{"scan_runs"}},
	}
	for _, tt := range tests {
		if got := splitFQN(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("splitFQN(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	sql, err := BuildCreateTableSQL(storage.ColumnStatsTable("public.scan_"))
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "public"."scan_column_stats"`,
		`"run_id" TEXT`,
		`"value_count" BIGINT`,
		`"mean" DOUBLE PRECISION`,
		`"nullable" BOOLEAN`,
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("DDL missing %q:\n%s", want, sql)
		}
	}

	if _, err := BuildCreateTableSQL(storage.TableDef{Name: "t"}); err == nil {
		t.Fatalf("table without columns must fail")
	}
	if _, err := BuildCreateTableSQL(storage.TableDef{Columns: []storage.ColumnDef{{Name: "a"}}}); err == nil {
		t.Fatalf("table without name must fail")
	}
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	if !slices.Contains(storage.ListKinds(), "postgres") {
		t.Fatalf("postgres not registered: %v", storage.ListKinds())
	}
	if _, err := storage.BuildDDL("postgres", storage.RunTable("")); err != nil {
		t.Fatalf("BuildDDL: %v", err)
	}
}

func TestFactory_PropagatesErrors(t *testing.T) {
	want := errors.New("no server")
	orig := newRepository
	newRepository = func(context.Context, Config) (*Repository, func(), error) { return nil, nil, want }
	defer func() { newRepository = orig }()

	if _, err := storage.New(context.Background(), storage.Config{Kind: "postgres", DSN: "postgres://x"}); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
