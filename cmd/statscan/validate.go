package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"statscan/internal/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a job config and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := opts.loadJob()
			if err != nil {
				return err
			}
			if err := printIssues(cmd.OutOrStdout(), config.ValidateJob(job)); err != nil {
				return fmt.Errorf("%s: %w", opts.configPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", opts.configPath)
			return nil
		},
	}
}
