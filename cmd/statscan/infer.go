package main

import (
	"encoding/csv"
	"fmt"

	"github.com/spf13/cobra"

	"statscan/internal/config"
	"statscan/internal/scan"
)

type inferOptions struct {
	input     string
	delimiter string
	rows      int
}

func newInferCmd(opts *rootOptions) *cobra.Command {
	in := &inferOptions{}
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Print the inferred schema as header,normalized,kind lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var job config.Job
			switch {
			case in.input != "":
				job = config.Job{
					Job:    "statscan",
					Source: config.Source{Kind: "file", File: config.SourceFile{Path: in.input}},
					Parser: config.Parser{Kind: "csv", Options: config.Options{}},
				}
			default:
				j, err := opts.loadJob()
				if err != nil {
					return fmt.Errorf("%w (or pass --input)", err)
				}
				job = j
			}
			if cmd.Flags().Changed("delimiter") {
				job.Parser.Options["delimiter"] = in.delimiter
			}
			if cmd.Flags().Changed("infer-rows") {
				n := in.rows
				job.Infer.Rows = &n
			}
			if err := printIssues(cmd.ErrOrStderr(), config.ValidateJob(job)); err != nil {
				return err
			}

			sch, sampled, err := scan.NewEngine(job).Infer(cmd.Context())
			if err != nil {
				return err
			}
			opts.logf("infer: sampled %d rows from %s", sampled, job.InputPath())

			w := csv.NewWriter(cmd.OutOrStdout())
			for _, c := range sch.Columns {
				if err := w.Write([]string{c.Name, c.Normalized, c.Kind.String()}); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}
	cmd.Flags().StringVar(&in.input, "input", "", "CSV file to sample (instead of --config)")
	cmd.Flags().StringVar(&in.delimiter, "delimiter", ",", "field delimiter")
	cmd.Flags().IntVar(&in.rows, "infer-rows", config.DefaultInferRows, "rows to sample; 0 reads the whole file")
	return cmd
}
