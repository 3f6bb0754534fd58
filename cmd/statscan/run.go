package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"statscan/internal/config"
	"statscan/internal/metrics"
	"statscan/internal/report"
	"statscan/internal/scan"
	"statscan/internal/storage"
)

type runOptions struct {
	out            string
	workers        int
	deadline       time.Duration
	noSink         bool
	metricsBackend string
	pushgatewayURL string
	dogstatsdAddr  string
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the input and write the statistics report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd.Context(), cmd, opts, ro)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&ro.out, "out", "o", "-", "report path; - writes to stdout")
	f.IntVarP(&ro.workers, "workers", "w", 0, "worker count (overrides runtime.workers)")
	f.DurationVar(&ro.deadline, "deadline", 0, "abort the scan after this long (overrides deadline)")
	f.BoolVar(&ro.noSink, "no-sink", false, "skip publishing to the configured sink")
	f.StringVar(&ro.metricsBackend, "metrics-backend", "", "metrics backend: prometheus, datadog or none (overrides env STATSCAN_METRICS_BACKEND)")
	f.StringVar(&ro.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env STATSCAN_PUSHGATEWAY_URL)")
	f.StringVar(&ro.dogstatsdAddr, "dogstatsd-addr", "", "DogStatsD address (overrides env STATSCAN_DOGSTATSD_ADDR)")
	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, opts *rootOptions, ro *runOptions) error {
	job, err := opts.loadJob()
	if err != nil {
		return err
	}
	if ro.workers > 0 {
		job.Runtime.Workers = ro.workers
	}
	if ro.deadline > 0 {
		job.Deadline = config.Duration(ro.deadline)
	}
	if err := printIssues(cmd.ErrOrStderr(), config.ValidateJob(job)); err != nil {
		return fmt.Errorf("%s: %w", opts.configPath, err)
	}

	stop := setupMetrics(job, ro, opts)
	defer stop()

	eng := scan.NewEngine(job)
	opts.logf("scan: source=%s parser=%s workers=%d sink=%s",
		job.InputPath(), job.Parser.Kind, eng.Workers(), job.Sink.Kind)

	start := time.Now()
	rep, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	if err := writeReport(cmd.OutOrStdout(), ro.out, rep); err != nil {
		return err
	}

	if job.Sink.Kind != "" && job.Sink.Kind != "none" && !ro.noSink {
		if err := publish(ctx, job, rep); err != nil {
			return err
		}
	}
	opts.logf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

func writeReport(stdout io.Writer, path string, rep *report.Report) error {
	if path == "" || path == "-" {
		return report.WriteJSON(stdout, rep)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteJSON(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return f.Close()
}

func publish(ctx context.Context, job config.Job, rep *report.Report) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStep(pick(job.Job, "statscan"), "publish", err, time.Since(start))
	}()

	repo, err := storage.New(ctx, storage.Config{Kind: job.Sink.Kind, DSN: job.Sink.DB.DSN})
	if err != nil {
		return fmt.Errorf("sink %s: %w", job.Sink.Kind, err)
	}
	defer repo.Close()

	n, err := storage.Publish(ctx, repo, rep, storage.PublishOptions{
		Kind:        job.Sink.Kind,
		TablePrefix: job.Sink.DB.TablePrefix,
		AutoCreate:  job.Sink.DB.AutoCreateTable,
	})
	if err != nil {
		return fmt.Errorf("sink %s: %w", job.Sink.Kind, err)
	}
	log.Printf("sink: kind=%s run_id=%s rows=%s", job.Sink.Kind, rep.Meta().RunID, humanize.Comma(n))
	return nil
}
