package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/translator"
)

const defaultTargetLanguage = "english"

func newTranslateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate TABLE COLUMN [LANGUAGE]",
		Short: "Translate a text column in place",
		Long: `Translate every value of TABLE.COLUMN into LANGUAGE (default english) and
write it back in place. LANGUAGE may be a code or a name. Pass "languages" as
LANGUAGE to list the supported languages without touching the database.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			job := catalog.TranslationJob{Table: args[0], Column: args[1], TargetLanguage: defaultTargetLanguage}
			if len(args) == 3 {
				job.TargetLanguage = args[2]
			}
			if !translator.IsCatalogRequest(job.TargetLanguage) {
				if err := requireDatabase(cmd.Context(), a); err != nil {
					return err
				}
			}

			report, err := a.Translate(cmd.Context(), job)
			if err != nil {
				return fmt.Errorf("translate %s.%s: %w", job.Table, job.Column, err)
			}
			out := cmd.OutOrStdout()
			if report.Catalog != nil {
				for _, code := range slices.Sorted(maps.Keys(report.Catalog)) {
					fmt.Fprintf(out, "%-6s %s\n", code, report.Catalog[code])
				}
				return nil
			}
			a.Logger().Info("translation finished",
				zap.String("table", job.Table),
				zap.String("column", job.Column),
				zap.String("language", report.Language),
				zap.Int("rows", report.Rows),
				zap.Int("translated", report.Translated),
				zap.Int("skipped_empty", report.SkippedEmpty),
				zap.Int("skipped_done", report.SkippedDone),
			)
			fmt.Fprintf(out, "%d rows: %d translated, %d empty, %d already translated\n",
				report.Rows, report.Translated, report.SkippedEmpty, report.SkippedDone)
			return nil
		},
	}
}
