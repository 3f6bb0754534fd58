package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"statscan/internal/config"
	csvparser "statscan/internal/parser/csv"
	"statscan/internal/report"
	"statscan/internal/schema"
	"statscan/internal/stats"
)

type memSource string

func (m memSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(m))), nil
}

// slowSource emits a header and then one row per Read, forever.
type slowSource struct{ delay time.Duration }

func (s slowSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(&slowReader{delay: s.delay}), nil
}

type slowReader struct {
	delay  time.Duration
	header bool
	n      int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if !r.header {
		r.header = true
		return copy(p, "page_id,spend\n"), nil
	}
	time.Sleep(r.delay)
	r.n++
	return copy(p, fmt.Sprintf("p%d,%d\n", r.n%3, r.n)), nil
}

// cancelAtEOF yields one row per Read and cancels its context when the
// input runs out, after every row has been handed to the scan.
type cancelAtEOF struct {
	rows   []string
	cancel context.CancelFunc
}

func (s *cancelAtEOF) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(s), nil
}

func (s *cancelAtEOF) Read(p []byte) (int, error) {
	if len(s.rows) == 0 {
		s.cancel()
		return 0, io.EOF
	}
	n := copy(p, s.rows[0])
	s.rows = s.rows[1:]
	return n, nil
}

func intp(n int) *int { return &n }

func newJob(workers, batch, infer int) config.Job {
	j := config.Job{Job: "test"}
	j.Runtime.Workers = workers
	j.Runtime.BatchSize = batch
	j.Runtime.ChannelBuffer = 2
	j.Infer.Rows = intp(infer)
	j.Stats.TopK = 10
	j.Parser.Options = config.Options{}
	return j
}

func runJob(t *testing.T, data string, job config.Job) *report.Report {
	t.Helper()
	r, err := NewEngine(job).WithSource(memSource(data)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return r
}

const adsCSV = `page_id,ad_id,spend,impressions,platform,clicks
p1,a1,10,100,fb,1
p1,a2,20,200,ig,2
p2,a3,20,NA,fb,abc
p2,a4
p3,,,300,fb,4
p1,a5,40,400,fb,5
`

func checkInvariants(t *testing.T, r *report.Report) {
	t.Helper()

	rows := r.Dataset().Rows
	for _, c := range r.Columns() {
		if c.Count+c.NullCount != rows {
			t.Fatalf("%s: count %d + null %d != rows %d", c.Name, c.Count, c.NullCount, rows)
		}
		if n := c.Numeric; n != nil && n.Count > 0 {
			if *n.Min > *n.Median || *n.Median > *n.Max {
				t.Fatalf("%s: median %v outside [%v, %v]", c.Name, *n.Median, *n.Min, *n.Max)
			}
			if *n.Mean < *n.Min-1e-9 || *n.Mean > *n.Max+1e-9 {
				t.Fatalf("%s: mean %v outside [%v, %v]", c.Name, *n.Mean, *n.Min, *n.Max)
			}
		}
		if cs := c.Categorical; cs != nil && cs.UniqueCount <= len(cs.TopK) {
			var sum int64
			for _, f := range cs.TopK {
				sum += f.Count
			}
			if sum != cs.Count {
				t.Fatalf("%s: frequency sum %d != count %d", c.Name, sum, cs.Count)
			}
		}
	}
	for _, g := range r.Groupings() {
		var sum int64
		for _, gr := range g.Groups {
			sum += gr.Count
		}
		if sum != g.Rows || g.Rows != rows {
			t.Fatalf("grouping %s: group sum %d, grouping rows %d, dataset rows %d", g.Name, sum, g.Rows, rows)
		}
	}
	ds, dg := r.Dataset(), r.Diagnostics()
	if ds.Rows+dg.DroppedRows != ds.TotalRows {
		t.Fatalf("rows %d + dropped %d != total %d", ds.Rows, dg.DroppedRows, ds.TotalRows)
	}
}

func TestRun_AdsReport(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 2, 4} {
		workers := workers
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			job := newJob(workers, 2, 2)
			job.Groupings = []config.Grouping{{Name: "by_page", Keys: []string{"page_id"}, Targets: []string{"spend"}}}
			r := runJob(t, adsCSV, job)
			checkInvariants(t, r)

			ds := r.Dataset()
			if ds.TotalRows != 6 || ds.Rows != 5 || ds.InferRows != 2 {
				t.Fatalf("dataset = %+v", ds)
			}
			if d := r.Diagnostics().DroppedRows; d != 1 {
				t.Fatalf("dropped_row_count = %d, want 1", d)
			}

			spend, ok := r.Column("spend")
			if !ok || spend.Numeric == nil {
				t.Fatalf("spend column missing or not numeric: %+v", spend)
			}
			n := spend.Numeric
			if n.Count != 4 || n.NullCount != 1 || *n.Min != 10 || *n.Max != 40 || *n.Median != 20 || math.Abs(*n.Mean-22.5) > 1e-9 {
				t.Fatalf("spend stats = %+v", n)
			}
			if math.Abs(*n.Std-math.Sqrt(475.0/3)) > 1e-9 {
				t.Fatalf("spend std = %v", *n.Std)
			}

			plat, _ := r.Column("platform")
			if c := plat.Categorical; c == nil || c.UniqueCount != 2 || *c.Mode != "fb" || c.ModeCount != 4 {
				t.Fatalf("platform stats = %+v", plat.Categorical)
			}

			clicks, _ := r.Column("clicks")
			if clicks.Numeric == nil || clicks.Count != 4 || clicks.NullCount != 1 {
				t.Fatalf("clicks = %+v", clicks)
			}

			g, ok := r.Grouping("by_page")
			if !ok {
				t.Fatalf("by_page missing")
			}
			var labels []string
			var counts []int64
			for _, gr := range g.Groups {
				labels = append(labels, gr.Label)
				counts = append(counts, gr.Count)
			}
			if !reflect.DeepEqual(labels, []string{"p1", "p2", "p3"}) || !reflect.DeepEqual(counts, []int64{3, 1, 1}) {
				t.Fatalf("groups = %v %v", labels, counts)
			}
			if mean := g.Groups[0].Targets[0].Stats.Mean; mean == nil || math.Abs(*mean-70.0/3) > 1e-9 {
				t.Fatalf("p1 spend mean = %v", mean)
			}

			kinds := map[string]int64{}
			for _, is := range r.Diagnostics().Issues {
				kinds[is.Column+"/"+string(is.Kind)] = is.Count
			}
			if kinds["/schema_error"] != 1 || kinds["clicks/type_coercion"] != 1 {
				t.Fatalf("issues = %+v", r.Diagnostics().Issues)
			}
		})
	}
}

// genRows builds a deterministic data set with missing values and ties.
func genRows(n int) []string {
	platforms := []string{"fb", "ig", "msg"}
	rows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		spend := fmt.Sprintf("%g", float64(i*37%101)/3)
		if i%11 == 0 {
			spend = ""
		}
		plat := platforms[i%3]
		if i%13 == 0 {
			plat = "NA"
		}
		rows = append(rows, fmt.Sprintf("p%d,%s,%s,%d", i%7, plat, spend, i%5))
	}
	return rows
}

func toCSV(rows []string) string {
	return "page_id,platform,spend,bucket\n" + strings.Join(rows, "\n") + "\n"
}

func TestRun_DeterministicPerWorkerCount(t *testing.T) {
	t.Parallel()

	data := toCSV(genRows(500))
	job := newJob(3, 16, 50)
	job.Groupings = []config.Grouping{{Name: "pp", Keys: []string{"page_id", "platform"}, Targets: []string{"spend"}}}

	a := runJob(t, data, job)
	b := runJob(t, data, job)
	if !reflect.DeepEqual(a.Columns(), b.Columns()) {
		t.Fatalf("columns differ between identical runs")
	}
	if !reflect.DeepEqual(a.Groupings(), b.Groupings()) {
		t.Fatalf("groupings differ between identical runs")
	}
	checkInvariants(t, a)
}

func approx(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return math.Abs(*a-*b) <= 1e-9*math.Max(1, math.Abs(*a))
}

func compareReports(t *testing.T, a, b *report.Report) {
	t.Helper()

	ac, bc := a.Columns(), b.Columns()
	if len(ac) != len(bc) {
		t.Fatalf("column count %d vs %d", len(ac), len(bc))
	}
	for i := range ac {
		x, y := ac[i], bc[i]
		if x.Count != y.Count || x.NullCount != y.NullCount || x.Kind != y.Kind {
			t.Fatalf("%s: %+v vs %+v", x.Name, x, y)
		}
		if xn, yn := x.Numeric, y.Numeric; xn != nil {
			if *xn.Min != *yn.Min || *xn.Max != *yn.Max || *xn.Median != *yn.Median {
				t.Fatalf("%s: order statistics differ", x.Name)
			}
			if !approx(xn.Mean, yn.Mean) || !approx(xn.Std, yn.Std) || !approx(xn.Sum, yn.Sum) {
				t.Fatalf("%s: mean/std/sum differ: %v/%v %v/%v", x.Name, *xn.Mean, *yn.Mean, *xn.Std, *yn.Std)
			}
		}
		if xc, yc := x.Categorical, y.Categorical; xc != nil {
			if xc.UniqueCount != yc.UniqueCount || !reflect.DeepEqual(xc.Mode, yc.Mode) || !reflect.DeepEqual(xc.TopK, yc.TopK) {
				t.Fatalf("%s: categorical differs: %+v vs %+v", x.Name, xc, yc)
			}
		}
	}

	ag, bg := a.Groupings(), b.Groupings()
	for i := range ag {
		if len(ag[i].Groups) != len(bg[i].Groups) {
			t.Fatalf("grouping %s: %d vs %d groups", ag[i].Name, len(ag[i].Groups), len(bg[i].Groups))
		}
		for j := range ag[i].Groups {
			x, y := ag[i].Groups[j], bg[i].Groups[j]
			if x.Label != y.Label || x.Count != y.Count {
				t.Fatalf("grouping %s[%d]: %s/%d vs %s/%d", ag[i].Name, j, x.Label, x.Count, y.Label, y.Count)
			}
		}
	}
}

func TestRun_WorkerCountIndependence(t *testing.T) {
	t.Parallel()

	data := toCSV(genRows(800))
	base := newJob(1, 32, 100)
	base.Groupings = []config.Grouping{{Name: "by_page", Keys: []string{"page_id"}, Targets: []string{"spend"}}}
	want := runJob(t, data, base)

	for _, w := range []int{2, 5, 8} {
		job := base
		job.Runtime.Workers = w
		compareReports(t, want, runJob(t, data, job))
	}
}

func TestRun_OrderIndependence(t *testing.T) {
	t.Parallel()

	rows := genRows(600)
	rev := make([]string, len(rows))
	for i, r := range rows {
		rev[len(rows)-1-i] = r
	}

	// Infer on the whole input so both orders decide the same schema.
	job := newJob(2, 25, 0)
	job.Groupings = []config.Grouping{{Name: "pb", Keys: []string{"page_id", "bucket"}}}
	compareReports(t, runJob(t, toCSV(rows), job), runJob(t, toCSV(rev), job))
}

func TestRun_FailFastAborts(t *testing.T) {
	t.Parallel()

	job := newJob(2, 2, 2)
	job.Parser.Options = config.Options{"policy": "fail_fast"}
	r, err := NewEngine(job).WithSource(memSource(adsCSV)).Run(context.Background())
	if err == nil || r != nil {
		t.Fatalf("expected abort without report, got r=%v err=%v", r, err)
	}
	var se *csvparser.SchemaError
	if !errors.As(err, &se) || se.Line != 5 {
		t.Fatalf("want SchemaError at line 5, got %v", err)
	}
}

func TestRun_DeadlineDiscardsReport(t *testing.T) {
	t.Parallel()

	job := newJob(2, 1, 2)
	job.Deadline = config.Duration(50 * time.Millisecond)
	r, err := NewEngine(job).WithSource(slowSource{delay: time.Millisecond}).Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if r != nil {
		t.Fatalf("no report may be produced on abort")
	}
}

func TestRun_CancelAfterLastBatchDiscardsReport(t *testing.T) {
	t.Parallel()

	rows := []string{"page_id,spend\n"}
	for i := range 64 {
		rows = append(rows, fmt.Sprintf("p%d,%d\n", i%3, i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := newJob(4, 1, 1)
	job.Runtime.ChannelBuffer = 128
	r, err := NewEngine(job).WithSource(&cancelAtEOF{rows: rows, cancel: cancel}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if r != nil {
		t.Fatalf("a cancelled scan must not return a partial report")
	}
}

func TestRun_NullPastInferenceSample(t *testing.T) {
	t.Parallel()

	data := "page_id,spend\np1,1\np2,2\np3,3\np4,\n"
	r := runJob(t, data, newJob(2, 1, 2))
	var found bool
	for _, c := range r.Columns() {
		if c.Name != "spend" {
			continue
		}
		found = true
		if c.NullCount != 1 || !c.Nullable {
			t.Fatalf("spend null=%d nullable=%v; want 1/true", c.NullCount, c.Nullable)
		}
	}
	if !found {
		t.Fatalf("spend column missing")
	}
}

func TestRun_TrimSpaceDefault(t *testing.T) {
	t.Parallel()

	data := "page_id,spend\np1 ,10\n p1,20\np1,30\n"
	cases := []struct {
		name   string
		opts   config.Options
		unique int
	}{
		{"default trims", config.Options{}, 1},
		{"explicit false keeps padding", config.Options{"trim_space": false}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			job := newJob(1, 4, 4)
			job.Parser.Options = tc.opts
			r := runJob(t, data, job)
			for _, c := range r.Columns() {
				if c.Name == "page_id" && (c.Categorical == nil || c.Categorical.UniqueCount != tc.unique) {
					t.Fatalf("page_id = %+v; want %d distinct values", c.Categorical, tc.unique)
				}
			}
		})
	}
}

func TestRun_FatalInputErrors(t *testing.T) {
	t.Parallel()

	job := newJob(1, 4, 4)
	if _, err := NewEngine(job).WithSource(memSource("")).Run(context.Background()); !errors.Is(err, csvparser.ErrEmptyInput) {
		t.Fatalf("empty input: err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine(job).WithSource(memSource(adsCSV)).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: err = %v", err)
	}

	bad := newJob(1, 4, 4)
	bad.Groupings = []config.Grouping{{Name: "g", Keys: []string{"nope"}}}
	if _, err := NewEngine(bad).WithSource(memSource(adsCSV)).Run(context.Background()); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("unknown key: err = %v", err)
	}

	src := newJob(1, 4, 4)
	src.Source.Kind = "s3"
	if _, err := NewEngine(src).Run(context.Background()); err == nil {
		t.Fatalf("unsupported source kind must fail")
	}
}

func TestRun_HeaderOnly(t *testing.T) {
	t.Parallel()

	r := runJob(t, "page_id,spend\n", newJob(2, 4, 4))
	ds := r.Dataset()
	if ds.TotalRows != 0 || ds.Rows != 0 || ds.Columns != 2 {
		t.Fatalf("dataset = %+v", ds)
	}
	for _, c := range r.Columns() {
		if c.Kind != schema.Categorical.String() || c.Categorical.Mode != nil {
			t.Fatalf("column %s = %+v", c.Name, c)
		}
	}
}

func TestRun_NestedColumn(t *testing.T) {
	t.Parallel()

	data := `page_id,delivery_by_region
p1,"{'US': {'spend': 10, 'impressions': 100}, 'CA': {'spend': 5, 'impressions': 50}}"
p2,"{'US': {'spend': 1, 'impressions': 10}}"
p3,
p4,not a dict
`
	job := newJob(2, 1, 0)
	job.Stats.NestedColumns = []config.NestedColumn{{Name: "delivery_by_region"}}
	r := runJob(t, data, job)
	checkInvariants(t, r)

	c, ok := r.Column("delivery_by_region")
	if !ok || c.Nested == nil {
		t.Fatalf("nested column = %+v", c)
	}
	if c.Count != 2 || c.NullCount != 2 {
		t.Fatalf("count=%d null=%d; want 2/2", c.Count, c.NullCount)
	}
	totals := map[string]float64{}
	for _, m := range c.Nested.Totals {
		if m.Total != nil {
			totals[m.Metric] = *m.Total
		}
	}
	if totals["spend"] != 16 || totals["impressions"] != 160 {
		t.Fatalf("totals = %v", totals)
	}
	if len(c.Nested.TopKeyCounts) != 1 || c.Nested.TopKeyCounts[0] != (stats.Freq{Value: "US", Count: 2}) {
		t.Fatalf("top keys = %+v", c.Nested.TopKeyCounts)
	}

	var coercions int64
	for _, is := range r.Diagnostics().Issues {
		if is.Column == "delivery_by_region" && is.Kind == report.KindTypeCoercion {
			coercions = is.Count
		}
	}
	if coercions != 1 {
		t.Fatalf("nested parse failures = %d, want 1", coercions)
	}

	missing := newJob(1, 4, 4)
	missing.Stats.NestedColumns = []config.NestedColumn{{Name: "regions"}}
	if _, err := NewEngine(missing).WithSource(memSource(data)).Run(context.Background()); err == nil {
		t.Fatalf("nested column absent from header must fail")
	}
}

func TestRun_NonNumericGroupTargetSkipped(t *testing.T) {
	t.Parallel()

	job := newJob(1, 8, 8)
	job.Groupings = []config.Grouping{{Name: "by_page", Keys: []string{"page_id"}, Targets: []string{"platform", "spend"}}}
	r := runJob(t, adsCSV, job)

	g, _ := r.Grouping("by_page")
	for _, gr := range g.Groups {
		if len(gr.Targets) != 1 || gr.Targets[0].Column != "spend" {
			t.Fatalf("targets = %+v", gr.Targets)
		}
	}
	var skipped bool
	for _, is := range r.Diagnostics().Issues {
		if is.Column == "platform" && is.Kind == report.KindTypeCoercion {
			skipped = true
		}
	}
	if !skipped {
		t.Fatalf("skipped target not reported: %+v", r.Diagnostics().Issues)
	}
}

func TestEngine_Infer(t *testing.T) {
	t.Parallel()

	sch, n, err := NewEngine(newJob(1, 2, 3)).WithSource(memSource(adsCSV)).Infer(context.Background())
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if n != 3 {
		t.Fatalf("sampled %d rows, want 3", n)
	}
	want := map[string]schema.Kind{
		"page_id":     schema.Categorical,
		"ad_id":       schema.Categorical,
		"spend":       schema.Numeric,
		"impressions": schema.Numeric,
		"platform":    schema.Categorical,
		"clicks":      schema.Categorical, // "abc" in 1 of 3 sampled values
	}
	for _, c := range sch.Columns {
		if want[c.Name] != c.Kind {
			t.Fatalf("%s: kind %v, want %v", c.Name, c.Kind, want[c.Name])
		}
	}
}
