package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"statscan/internal/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "statscan",
		Short: "Descriptive statistics for CSV files",
		Long: `statscan reads a CSV file once, infers a type for every column from a
leading sample and reports completeness, numeric summaries, frequency
tables and grouped aggregates as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "job config JSON path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(newRunCmd(opts), newValidateCmd(opts), newInferCmd(opts))
	return root
}

func (o *rootOptions) loadJob() (config.Job, error) {
	if o.configPath == "" {
		return config.Job{}, fmt.Errorf("--config is required")
	}
	return config.Load(o.configPath)
}

func (o *rootOptions) logf(format string, a ...any) {
	if o.verbose {
		log.Printf(format, a...)
	}
}

// printIssues writes each issue on its own line and returns an error when
// any of them blocks execution.
func printIssues(w io.Writer, issues []config.Issue) error {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid")
	}
	return nil
}
