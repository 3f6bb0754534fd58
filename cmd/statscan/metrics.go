package main

import (
	"log"
	"os"

	"statscan/internal/config"
	"statscan/internal/metrics"
	"statscan/internal/metrics/datadog"
	"statscan/internal/metrics/prompush"
)

// pick returns the first non-empty value.
func pick(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// metricsBackend resolves the backend name: flag → env → job config.
func metricsBackend(job config.Job, ro *runOptions) string {
	return pick(ro.metricsBackend, os.Getenv("STATSCAN_METRICS_BACKEND"), job.Metrics.Backend)
}

// setupMetrics installs the configured backend and returns a func that
// flushes it and restores the nop backend. Backend init failures are logged
// and leave metrics disabled.
func setupMetrics(job config.Job, ro *runOptions, opts *rootOptions) func() {
	jobName := pick(job.Job, "statscan")

	var (
		b   metrics.Backend
		err error
	)
	switch name := metricsBackend(job, ro); name {
	case "prometheus", "prom", "pushgateway":
		gwURL := pick(ro.pushgatewayURL, os.Getenv("STATSCAN_PUSHGATEWAY_URL"), job.Metrics.PushgatewayURL, "http://localhost:9091")
		b, err = prompush.NewBackend(jobName, gwURL)
		if err == nil {
			log.Printf("metrics: backend=%s url=%s job_name=%s", name, gwURL, jobName)
		}
	case "datadog", "dogstatsd":
		addr := pick(ro.dogstatsdAddr, os.Getenv("STATSCAN_DOGSTATSD_ADDR"), job.Metrics.DogStatsDAddr, "127.0.0.1:8125")
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "statscan.",
			GlobalTags: []string{"job:" + jobName},
		})
		if err == nil {
			log.Printf("metrics: backend=%s addr=%s job_name=%s", name, addr, jobName)
		}
	case "", "none":
		opts.logf("metrics: disabled (backend=%q)", name)
		return func() {}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: failed to init backend: %v; using nop", err)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
		metrics.Reset()
	}
}
