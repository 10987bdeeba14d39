package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"filevault-backend/internal/bootstrap"
	"filevault-backend/internal/reconcile"
	"filevault-backend/internal/shared/config"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job once and print its report",
		Long: `Run a single job immediately, outside the schedule.

Examples:
  reconciler run signed_url_refresh
  reconciler run orphan_cleanup --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := bootstrap.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			job, err := app.Job(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				if job.Name() != reconcile.OrphanJobName {
					return fmt.Errorf("--dry-run is only supported by %s", reconcile.OrphanJobName)
				}
				app.Orphans.DryRun = true
			}

			rep := job.Run(cmd.Context())
			printReport(cmd.OutOrStdout(), rep)
			return rep.Err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what orphan_cleanup would delete without deleting")
	return cmd
}

func printReport(w io.Writer, r reconcile.Report) {
	fmt.Fprintf(w, "job:          %s\n", r.Job)
	fmt.Fprintf(w, "run id:       %s\n", r.RunID)
	fmt.Fprintf(w, "status:       %s\n", r.Status())
	fmt.Fprintf(w, "duration:     %s\n", r.Duration())
	fmt.Fprintf(w, "scanned:      %d\n", r.Scanned)
	switch r.Job {
	case reconcile.RefreshJobName:
		fmt.Fprintf(w, "refreshed:    %d\n", r.Refreshed)
		fmt.Fprintf(w, "skipped:      %d\n", r.Skipped)
		fmt.Fprintf(w, "inconsistent: %d\n", r.Inconsistent)
	case reconcile.OrphanJobName:
		fmt.Fprintf(w, "kept:         %d\n", r.Kept)
		fmt.Fprintf(w, "deleted:      %d\n", r.Deleted)
		fmt.Fprintf(w, "skipped:      %d\n", r.Skipped)
		if r.DryRun {
			fmt.Fprintln(w, "dry run:      nothing was deleted")
		}
	default:
		fmt.Fprintf(w, "deleted:      %d\n", r.Deleted)
	}
	fmt.Fprintf(w, "failed:       %d\n", r.Failed)
	if r.Err != nil {
		fmt.Fprintf(w, "error:        %v\n", r.Err)
	}
}
