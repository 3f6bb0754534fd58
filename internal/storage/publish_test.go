package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"statscan/internal/group"
	"statscan/internal/report"
	"statscan/internal/schema"
	"statscan/internal/stats"
)

func sampleReport(t *testing.T) *report.Report {
	t.Helper()

	spend := stats.NewNumeric(0)
	spend.Add(10)
	spend.Add(30)
	spend.AddMissing()

	empty := stats.NewNumeric(0)
	empty.AddMissing()
	empty.AddMissing()
	empty.AddMissing()

	page := stats.NewCategorical(0)
	for _, v := range []string{"p1", "p1", "p2"} {
		page.Add(v)
	}

	g := stats.NewNumeric(0)
	g.Add(10)

	diags := report.NewDiagnostics(3)
	diags.Add("", report.KindSchemaError, "line 4: incorrect number of fields")

	b := report.NewBuilder(report.Meta{RunID: "r1", Job: "ads", Source: "ads.csv"}, diags, 2)
	b.AddColumn(report.CategoricalColumn(schema.Column{Name: "page_id", Normalized: "page_id"}, page.Finalize(5, 2)))
	b.AddColumn(report.NumericColumn(schema.Column{Name: "spend", Normalized: "spend", Nullable: true}, spend.Finalize(2)))
	b.AddColumn(report.NumericColumn(schema.Column{Name: "blank", Normalized: "blank", Nullable: true}, empty.Finalize(2)))
	b.AddGrouping(group.Result{
		Name: "by_page",
		Keys: []string{"page_id"},
		Rows: 3,
		Groups: []group.Group{
			{Key: group.Key{{Text: "p1"}}, Label: "p1", Count: 2, Targets: []group.TargetStats{{Column: "spend", Stats: g.Finalize(2)}}},
			{Key: group.Key{{Missing: true}}, Label: group.MissingLabel, Count: 1, MissingKey: true},
		},
	})
	b.SetRows(4, 3, 3)
	r, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r
}

func TestFlatten_RowWidths(t *testing.T) {
	t.Parallel()

	r := sampleReport(t)
	run, err := RunRow(r)
	if err != nil {
		t.Fatalf("RunRow: %v", err)
	}
	if len(run) != len(RunTable("").Columns) {
		t.Fatalf("run row width %d, want %d", len(run), len(RunTable("").Columns))
	}

	cols, err := ColumnRows(r)
	if err != nil {
		t.Fatalf("ColumnRows: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("column rows = %d, want 3", len(cols))
	}
	for i, row := range cols {
		if len(row) != len(ColumnStatsTable("").Columns) {
			t.Fatalf("column row %d width %d, want %d", i, len(row), len(ColumnStatsTable("").Columns))
		}
	}

	groups, err := GroupRows(r)
	if err != nil {
		t.Fatalf("GroupRows: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("group rows = %d, want 2", len(groups))
	}
	for i, row := range groups {
		if len(row) != len(GroupStatsTable("").Columns) {
			t.Fatalf("group row %d width %d, want %d", i, len(row), len(GroupStatsTable("").Columns))
		}
	}
}

func colIndex(t *testing.T, def TableDef, name string) int {
	t.Helper()
	for i, c := range def.Columns {
		if c.Name == name {
			return i
		}
	}
	t.Fatalf("column %s not in %s", name, def.Name)
	return -1
}

func TestColumnRows_NullsForUndefinedStats(t *testing.T) {
	t.Parallel()

	cols, err := ColumnRows(sampleReport(t))
	if err != nil {
		t.Fatalf("ColumnRows: %v", err)
	}
	def := ColumnStatsTable("")
	mean, unique, topK := colIndex(t, def, "mean"), colIndex(t, def, "unique_count"), colIndex(t, def, "top_k")

	page, spend, blank := cols[0], cols[1], cols[2]
	if page[mean] != nil {
		t.Fatalf("categorical mean = %v, want NULL", page[mean])
	}
	if page[unique] != int64(2) {
		t.Fatalf("unique_count = %v, want 2", page[unique])
	}
	var top []stats.Freq
	if err := json.Unmarshal([]byte(page[topK].(string)), &top); err != nil || len(top) != 2 || top[0].Value != "p1" {
		t.Fatalf("top_k = %v (%v)", page[topK], err)
	}
	if spend[mean] != 20.0 {
		t.Fatalf("spend mean = %v, want 20", spend[mean])
	}
	if spend[unique] != nil {
		t.Fatalf("numeric unique_count = %v, want NULL", spend[unique])
	}
	if blank[mean] != nil || blank[colIndex(t, def, "median")] != nil {
		t.Fatalf("all-missing column must store NULL mean/median: %v", blank)
	}
}

func TestGroupRows_MissingKeyAndTargets(t *testing.T) {
	t.Parallel()

	rows, err := GroupRows(sampleReport(t))
	if err != nil {
		t.Fatalf("GroupRows: %v", err)
	}
	def := GroupStatsTable("")
	key, target, rank := colIndex(t, def, "group_key"), colIndex(t, def, "target"), colIndex(t, def, "group_rank")

	if rows[0][key] != `["p1"]` || rows[0][target] != "spend" || rows[0][rank] != int64(1) {
		t.Fatalf("first group row = %v", rows[0])
	}
	if rows[1][key] != `[null]` || rows[1][colIndex(t, def, "missing_key")] != true {
		t.Fatalf("missing-key group row = %v", rows[1])
	}
	if rows[1][target] != nil {
		t.Fatalf("group without targets must have NULL target, got %v", rows[1][target])
	}
}

func TestRunRow_IssuesJSON(t *testing.T) {
	t.Parallel()

	run, err := RunRow(sampleReport(t))
	if err != nil {
		t.Fatalf("RunRow: %v", err)
	}
	def := RunTable("")
	if run[colIndex(t, def, "dropped_rows")] != int64(1) {
		t.Fatalf("dropped_rows = %v, want 1", run[colIndex(t, def, "dropped_rows")])
	}
	issues := run[colIndex(t, def, "issues")].(string)
	if !strings.Contains(issues, "schema_error") {
		t.Fatalf("issues JSON = %s", issues)
	}
}

func TestPublish_AutoCreateAndCopy(t *testing.T) {
	t.Parallel()

	RegisterDDL("fake-dialect", func(td TableDef) (string, error) { return "CREATE " + td.Name, nil })
	repo := &fakeRepo{}
	n, err := Publish(context.Background(), repo, sampleReport(t), PublishOptions{Kind: "fake-dialect", TablePrefix: "s_", AutoCreate: true})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 6 {
		t.Fatalf("rows = %d, want 6", n)
	}
	if len(repo.execs) != 3 || repo.execs[0] != "CREATE s_runs" {
		t.Fatalf("execs = %v", repo.execs)
	}
	wantTables := []string{"s_runs", "s_column_stats", "s_group_stats"}
	if len(repo.copies) != len(wantTables) {
		t.Fatalf("copies = %d, want %d", len(repo.copies), len(wantTables))
	}
	for i, c := range repo.copies {
		if c.table != wantTables[i] {
			t.Fatalf("copy %d into %s, want %s", i, c.table, wantTables[i])
		}
	}
}

func TestPublish_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Publish(context.Background(), &fakeRepo{}, sampleReport(t), PublishOptions{Kind: "unknown-dialect", AutoCreate: true}); err == nil {
		t.Fatalf("expected DDL error")
	}

	want := errors.New("disk full")
	if _, err := Publish(context.Background(), &fakeRepo{err: want}, sampleReport(t), PublishOptions{}); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
