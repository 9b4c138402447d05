package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/app"
	"github.com/meizi0715/bdt-v1.5/internal/report"
)

// newRunCmd creates the 'run' subcommand: one full discovery pass.
func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl every location once and notify on change",
		Long: `Crawls all configured locations, saves a snapshot of the open slots,
and publishes the report when it differs from the previous snapshot or the
forced window is active. Meant to be started by cron every ten minutes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), e.cfg, e.logger, app.Options{DryRun: dryRun})
			if err != nil {
				return fmt.Errorf("init services: %w", err)
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					e.logger.Warn("failed to close services", zap.Error(cerr))
				}
			}()

			res, err := a.Runner().Run(cmd.Context())
			if dryRun {
				// Print whatever was collected even when persistence failed.
				if _, werr := cmd.OutOrStdout().Write(report.Text(res.Report.Lines())); werr != nil {
					return fmt.Errorf("write report: %w", werr)
				}
			}
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "crawl and save but print the report instead of publishing")
	return cmd
}
