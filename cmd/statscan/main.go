// Command statscan profiles a CSV file: it infers column types, computes
// per-column and per-group statistics in one parallel pass, and writes a
// JSON report. Optionally the report is published to a SQL sink.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// register all backends with the storage factory; the job config picks
	// which one to use.
	_ "statscan/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "statscan: %v\n", err)
		stop()
		os.Exit(1)
	}
}
