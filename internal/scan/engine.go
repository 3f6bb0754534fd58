// Package scan runs one statistics pass over a delimited input.
//
// A single producer reads rows in input order. It first buffers the
// inference prefix and decides the schema once. It then replays the buffer
// and streams the remaining rows in pooled batches, sending batch k to worker
// k mod W. Each worker owns a private table of accumulators. After the last
// batch the tables are merged in worker order and finalized into a Report.
//
// Given the same input and worker count, the report is bit-identical across
// runs. A deadline or fatal error discards everything; there is no partial
// report.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"statscan/internal/config"
	"statscan/internal/datasource"
	"statscan/internal/datasource/file"
	"statscan/internal/group"
	"statscan/internal/metrics"
	csvparser "statscan/internal/parser/csv"
	"statscan/internal/report"
	"statscan/internal/schema"
	"statscan/internal/stats"
)

// progressEvery is the heartbeat interval in data rows.
const progressEvery = 1 << 20

// Engine executes a job. It is single-use per Run call but may be reused
// for sequential runs.
type Engine struct {
	job config.Job
	src datasource.Source
	rt  runtimeConfig
}

// NewEngine returns an engine for job. The input source is derived from the
// job unless replaced with WithSource.
func NewEngine(job config.Job) *Engine {
	return &Engine{job: job, rt: newRuntimeConfig(job)}
}

// WithSource replaces the job's input source.
func (e *Engine) WithSource(src datasource.Source) *Engine {
	e.src = src
	return e
}

// Workers returns the resolved worker count.
func (e *Engine) Workers() int { return e.rt.workers }

func (e *Engine) jobName() string {
	if e.job.Job == "" {
		return "statscan"
	}
	return e.job.Job
}

func (e *Engine) source() (datasource.Source, error) {
	if e.src != nil {
		return e.src, nil
	}
	switch e.job.Source.Kind {
	case "", "file":
		return file.NewLocal(e.job.InputPath()), nil
	default:
		return nil, fmt.Errorf("unsupported source.kind=%s", e.job.Source.Kind)
	}
}

// parserOptions maps the job's parser options bag onto the CSV reader.
func parserOptions(o config.Options) csvparser.Options {
	return csvparser.Options{
		Comma:         o.Rune("delimiter", ','),
		TrimSpace:     o.Bool("trim_space", true),
		LazyQuotes:    o.Bool("lazy_quotes", false),
		MissingTokens: o.StringSlice("missing_tokens"),
		Policy:        csvparser.Policy(o.String("policy", string(csvparser.PolicySkip))),
	}
}

// prefix is the buffered inference sample.
type prefix struct {
	sch     *schema.Schema
	batches []*batch
	rows    int
	eof     bool
}

// Run scans the input and returns the finalized report. On a fatal error or
// when the job deadline expires, no report is returned.
func (e *Engine) Run(ctx context.Context) (*report.Report, error) {
	start := time.Now()
	if d := e.job.Deadline.Std(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	rep, err := e.run(ctx, start)
	metrics.RecordStep(e.jobName(), "scan", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", e.jobName(), err)
	}
	return rep, nil
}

// Infer reads only the inference prefix and returns the decided schema and
// the number of rows sampled.
func (e *Engine) Infer(ctx context.Context) (*schema.Schema, int, error) {
	rc, rd, err := e.open(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	pre, err := e.readPrefix(ctx, rd, report.NewDiagnostics(0))
	if err != nil {
		return nil, 0, err
	}
	for _, b := range pre.batches {
		b.free()
	}
	return pre.sch, pre.rows, nil
}

func (e *Engine) open(ctx context.Context) (io.ReadCloser, *csvparser.Reader, error) {
	src, err := e.source()
	if err != nil {
		return nil, nil, err
	}
	if s, ok := src.(interface{ Size() (int64, error) }); ok {
		if n, err := s.Size(); err == nil {
			log.Printf("source: %s (%s)", e.job.InputPath(), humanize.Bytes(uint64(n)))
		}
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("source open: %w", err)
	}
	rd, err := csvparser.NewReader(rc, parserOptions(e.job.Parser.Options))
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return rc, rd, nil
}

func (e *Engine) run(ctx context.Context, start time.Time) (*report.Report, error) {
	rc, rd, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	diags := report.NewDiagnostics(report.DefaultExampleLimit)

	t0 := time.Now()
	pre, err := e.readPrefix(ctx, rd, diags)
	metrics.RecordStep(e.jobName(), "infer", err, time.Since(t0))
	if err != nil {
		return nil, err
	}
	lay, err := e.layout(pre.sch, diags)
	if err != nil {
		return nil, err
	}
	log.Printf("schema: columns=%d sampled=%s groupings=%d workers=%d batch=%d",
		pre.sch.Width(), humanize.Comma(int64(pre.rows)), len(lay.plans), e.rt.workers, e.rt.batchSize)

	t0 = time.Now()
	tables, batches, err := e.accumulate(ctx, rd, lay, pre, diags)
	metrics.RecordStep(e.jobName(), "accumulate", err, time.Since(t0))
	if err != nil {
		return nil, err
	}

	merged := tables[0]
	for _, t := range tables[1:] {
		merged.merge(t)
	}
	diags.Merge(merged.diags)

	b := report.NewBuilder(report.Meta{
		RunID:     uuid.NewString(),
		Job:       e.job.Job,
		Source:    e.job.InputPath(),
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
	}, diags, e.job.NullPctDecimals())
	merged.finalize(b, e.job.TopK(), e.job.NullPctDecimals())
	b.SetRows(rd.Total(), merged.rows, pre.rows)
	rep, err := b.Build()
	if err != nil {
		return nil, err
	}

	metrics.RecordRow(e.jobName(), "processed", merged.rows)
	metrics.RecordRow(e.jobName(), "dropped", rd.Dropped())
	metrics.RecordBatches(e.jobName(), batches)
	logSummary(rep, rd.Dropped(), batches, time.Since(start))
	return rep, nil
}

// readPrefix buffers up to the job's inference sample and decides the
// schema. Malformed rows are recorded and not sampled.
func (e *Engine) readPrefix(ctx context.Context, rd *csvparser.Reader, diags *report.Diagnostics) (*prefix, error) {
	nested := make([]string, 0, len(e.job.Stats.NestedColumns))
	for _, n := range e.job.Stats.NestedColumns {
		nested = append(nested, n.Name)
	}
	in := schema.NewInferencer(rd.Headers(), schema.InferOptions{
		NumericThreshold: e.job.Infer.NumericThreshold,
		Nested:           nested,
	})

	limit := e.job.InferRows()
	width := len(rd.Headers())
	bs := e.rt.batchSize
	p := &prefix{}
	cur := getBatch(bs, width)
	for limit == 0 || in.Rows() < limit {
		if cur.len() == bs {
			p.batches = append(p.batches, cur)
			cur = getBatch(bs, width)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		res, err := rd.Next()
		if errors.Is(err, io.EOF) {
			p.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
		if res.Dropped() {
			recordIssue(diags, res.Issue)
			continue
		}
		in.Observe(res.Record.Fields, res.Record.Missing)
		cur.add(res.Record)
	}
	if cur.len() > 0 {
		p.batches = append(p.batches, cur)
	} else {
		cur.free()
	}
	p.sch = in.Schema()
	p.rows = in.Rows()
	return p, nil
}

// layout resolves nested column options and groupings against sch.
func (e *Engine) layout(sch *schema.Schema, diags *report.Diagnostics) (*layout, error) {
	lay := &layout{
		sch:               sch,
		nested:            make(map[int]stats.NestedOptions),
		maxMedianBuffer:   e.job.Stats.MaxMedianBuffer,
		maxDistinctValues: e.job.Stats.MaxDistinctValues,
		exampleLimit:      report.DefaultExampleLimit,
	}
	for _, n := range e.job.Stats.NestedColumns {
		i := sch.Lookup(n.Name)
		if i < 0 {
			return nil, fmt.Errorf("nested column %q not in header", n.Name)
		}
		lay.nested[i] = stats.NestedOptions{Metrics: n.Metrics, RankBy: n.RankBy}
	}
	for _, g := range e.job.Groupings {
		p, err := group.NewPlan(group.Spec{Name: g.Name, Keys: g.Keys, Targets: g.Targets}, sch, group.Options{
			MaxGroups:       e.job.Stats.MaxGroups,
			MaxMedianBuffer: e.job.Stats.MaxMedianBuffer,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range p.Skipped() {
			diags.Add(t, report.KindTypeCoercion, fmt.Sprintf("grouping %s: target is not numeric; skipped", g.Name))
		}
		lay.plans = append(lay.plans, p)
	}
	return lay, nil
}

// accumulate replays the prefix and streams the rest of the input through
// the workers. It returns the worker tables in worker order.
func (e *Engine) accumulate(ctx context.Context, rd *csvparser.Reader, lay *layout, pre *prefix, diags *report.Diagnostics) ([]*table, int64, error) {
	w := e.rt.workers
	tables := make([]*table, w)
	chans := make([]chan *batch, w)

	g, gctx := errgroup.WithContext(ctx)
	for i := range w {
		tables[i] = newTable(lay)
		chans[i] = make(chan *batch, e.rt.bufferSize)
		t, ch := tables[i], chans[i]
		g.Go(func() error {
			// Once cancelled, drain the channel to return batches to the
			// pool without counting them.
			var err error
			for b := range ch {
				if err == nil {
					err = gctx.Err()
				}
				if err == nil {
					for j := 0; j < b.len(); j++ {
						t.add(b.record(j))
					}
				}
				b.free()
			}
			return err
		})
	}

	var batches int64
	g.Go(func() error {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()

		send := func(b *batch) error {
			if err := gctx.Err(); err != nil {
				b.free()
				return err
			}
			select {
			case chans[batches%int64(w)] <- b:
				batches++
				return nil
			case <-gctx.Done():
				b.free()
				return gctx.Err()
			}
		}

		for i, b := range pre.batches {
			if err := send(b); err != nil {
				for _, rest := range pre.batches[i+1:] {
					rest.free()
				}
				return err
			}
		}
		if pre.eof {
			return nil
		}

		bs, width := e.rt.batchSize, lay.sch.Width()
		cur := getBatch(bs, width)
		next := int64(progressEvery)
		for {
			res, err := rd.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				cur.free()
				return err
			}
			if res.Dropped() {
				recordIssue(diags, res.Issue)
				continue
			}
			cur.add(res.Record)
			if cur.len() == bs {
				if err := send(cur); err != nil {
					return err
				}
				cur = getBatch(bs, width)
			}
			if rd.Total() >= next {
				log.Printf("progress: rows=%s dropped=%s batches=%d",
					humanize.Comma(rd.Total()), humanize.Comma(rd.Dropped()), batches)
				next += progressEvery
			}
		}
		if cur.len() > 0 {
			return send(cur)
		}
		cur.free()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	// A cancellation that lands after the last batch was handed off still
	// discards the run.
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return tables, batches, nil
}

// recordIssue files a dropped row under its diagnostic kind.
func recordIssue(d *report.Diagnostics, err error) {
	var se *csvparser.SchemaError
	if errors.As(err, &se) {
		d.Add("", report.KindSchemaError, err.Error())
		return
	}
	d.Add("", report.KindParseError, err.Error())
}
