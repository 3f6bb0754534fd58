package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"statscan/internal/group"
	"statscan/internal/report"
	"statscan/internal/schema"
	"statscan/internal/stats"
	"statscan/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "stats.db")
	r, closeFn, err := NewRepository(context.Background(), Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(closeFn)
	return r
}

func testReport(t *testing.T) *report.Report {
	t.Helper()

	spend := stats.NewNumeric(0)
	for _, v := range []float64{10, 20, 30} {
		spend.Add(v)
	}
	page := stats.NewCategorical(0)
	for _, v := range []string{"p1", "p1", "p2"} {
		page.Add(v)
	}
	p1 := stats.NewNumeric(0)
	p1.Add(10)
	p1.Add(20)
	p2 := stats.NewNumeric(0)
	p2.Add(30)

	b := newBuilder(t)
	b.AddColumn(report.CategoricalColumn(schema.Column{Name: "page_id", Normalized: "page_id"}, page.Finalize(5, 2)))
	b.AddColumn(report.NumericColumn(schema.Column{Name: "spend", Normalized: "spend"}, spend.Finalize(2)))
	b.AddGrouping(group.Result{
		Name: "by_page",
		Keys: []string{"page_id"},
		Rows: 3,
		Groups: []group.Group{
			{Key: group.Key{{Text: "p1"}}, Label: "p1", Count: 2, Targets: []group.TargetStats{{Column: "spend", Stats: p1.Finalize(2)}}},
			{Key: group.Key{{Text: "p2"}}, Label: "p2", Count: 1, Targets: []group.TargetStats{{Column: "spend", Stats: p2.Finalize(2)}}},
		},
	})
	b.SetRows(3, 3, 3)
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r
}

func newBuilder(t *testing.T) *report.Builder {
	t.Helper()
	return report.NewBuilder(report.Meta{RunID: "run-1", Job: "ads", Source: "ads.csv"}, report.NewDiagnostics(3), 2)
}

func countRows(t *testing.T, r *Repository, query string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRowContext(context.Background(), query).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func TestPublish_SQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)
	rep := testReport(t)
	opt := storage.PublishOptions{Kind: "sqlite", TablePrefix: "scan_", AutoCreate: true}

	n, err := storage.Publish(ctx, &wrappedRepo{Repository: repo, closeFn: func() {}}, rep, opt)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 5 {
		t.Fatalf("rows written = %d; want 5 (1 run, 2 columns, 2 groups)", n)
	}
	if got := countRows(t, repo, `SELECT COUNT(*) FROM "scan_runs"`); got != 1 {
		t.Fatalf("runs = %d; want 1", got)
	}
	if got := countRows(t, repo, `SELECT COUNT(*) FROM "scan_column_stats" WHERE mean IS NULL`); got != 1 {
		t.Fatalf("categorical column must store NULL mean, got %d null rows", got)
	}
	if got := countRows(t, repo, `SELECT COUNT(*) FROM "scan_group_stats" WHERE group_label = 'p1' AND group_count = 2`); got != 1 {
		t.Fatalf("group p1 row missing")
	}

	// A second publish reuses the existing tables.
	if _, err := storage.Publish(ctx, &wrappedRepo{Repository: repo, closeFn: func() {}}, rep, opt); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if got := countRows(t, repo, `SELECT COUNT(*) FROM "scan_column_stats"`); got != 4 {
		t.Fatalf("column rows after two runs = %d; want 4", got)
	}
}

func TestCopyFrom_RowWidthMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.Exec(ctx, `CREATE TABLE t (a TEXT, b INTEGER)`); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, err := repo.CopyFrom(ctx, "t", []string{"a", "b"}, [][]any{{"x"}}); err == nil {
		t.Fatalf("expected row width error")
	}
	if got := countRows(t, repo, `SELECT COUNT(*) FROM t`); got != 0 {
		t.Fatalf("failed copy must roll back, found %d rows", got)
	}
}

func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	sql, err := BuildCreateTableSQL(storage.RunTable("scan_"))
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	for _, want := range []string{`CREATE TABLE IF NOT EXISTS "scan_runs"`, `"total_rows" INTEGER`, `"completeness_pct" REAL`, `"started_at" TEXT`} {
		if !strings.Contains(sql, want) {
			t.Fatalf("DDL missing %q:\n%s", want, sql)
		}
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
