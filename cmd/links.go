package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "Discover category pages from the configured seeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireDatabase(cmd.Context(), a); err != nil {
				return err
			}
			report, err := a.Discover(cmd.Context())
			logger := a.Logger()
			for _, f := range report.Failures {
				logger.Warn("page failed", zap.String("url", f.URL), zap.Error(f.Err))
			}
			for _, u := range report.Skipped {
				logger.Info("unrecognized page skipped", zap.String("url", u))
			}
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			logger.Info("discovery finished",
				zap.Int("visited", report.Visited),
				zap.Int("inserted", report.Inserted),
				zap.Int("seeds_inserted", report.SeedsInserted),
				zap.Int("excluded", report.Excluded),
				zap.Int("failures", len(report.Failures)),
				zap.Bool("truncated", report.Truncated),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "visited %d pages, %d new categories, %d failures\n",
				report.Visited, report.Inserted+report.SeedsInserted, len(report.Failures))
			return nil
		},
	}
}
