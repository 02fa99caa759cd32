package main

import (
	"context"
	"coursesync/internal/job"
	"fmt"

	"github.com/spf13/cobra"
)

var auditCreator string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run one membership audit over every linked course and print its log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		id, err := a.service.Audit(ctx, auditCreator)
		if err != nil {
			return fmt.Errorf("submitting audit: %w", err)
		}
		a.runner.Wait()

		j, err := a.runner.Get(ctx, id)
		if err != nil {
			return err
		}
		if j.Log != "" {
			fmt.Fprintln(cmd.OutOrStdout(), j.Log)
		}
		if j.Status == job.StatusError {
			return fmt.Errorf("audit job %s failed", j.ID)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditCreator, "as", "cli", "identity recorded as the job's creator")
	rootCmd.AddCommand(auditCmd)
}
