package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/scraper"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape URL",
		Short: "Scrape the product listing of one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireDatabase(cmd.Context(), a); err != nil {
				return err
			}
			report, err := a.Scrape(cmd.Context(), args[0])
			return finishScrape(cmd, a, report, err)
		},
	}
}

func newScrapeAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape-all",
		Short: "Scrape every discovered category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireDatabase(cmd.Context(), a); err != nil {
				return err
			}
			ok, err := a.CheckURLs(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w; run links first", catalog.ErrNoCategories)
			}
			report, err := a.Scrape(cmd.Context(), "")
			return finishScrape(cmd, a, report, err)
		},
	}
}

func finishScrape(cmd *cobra.Command, a App, report scraper.Report, err error) error {
	logger := a.Logger()
	for _, f := range report.Failures {
		logger.Warn("page failed", zap.String("url", f.URL), zap.Error(f.Err))
	}
	for _, skipped := range report.Skipped {
		var parseErr *catalog.ParseError
		if errors.As(skipped, &parseErr) {
			logger.Warn("product skipped", zap.String("url", parseErr.URL), zap.Int("index", parseErr.Index),
				zap.String("reason", parseErr.Reason))
		}
	}
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	logger.Info("scrape finished",
		zap.Int("categories", report.Categories),
		zap.Int("pages", report.Pages),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failures", len(report.Failures)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%d categories, %d pages: %d created, %d updated, %d skipped, %d failures\n",
		report.Categories, report.Pages, report.Created, report.Updated, len(report.Skipped), len(report.Failures))
	return nil
}
