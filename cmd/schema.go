package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the catalog database and tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			a.Logger().Info("schema ready", zap.String("database", a.Database()))
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is ready\n", a.Database())
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Irreversibly delete the catalog database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireConnection(cmd.Context(), a); err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Delete database %s and all its data?", a.Database())) {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			return dropTolerant(cmd, a)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newRecreateCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "recreate",
		Short: "Delete and re-create the catalog database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireConnection(cmd.Context(), a); err != nil {
				return err
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Delete and re-create database %s?", a.Database())) {
				fmt.Fprintln(cmd.OutOrStdout(), "aborted")
				return nil
			}
			if err := dropTolerant(cmd, a); err != nil {
				return err
			}
			if err := a.CreateSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is ready\n", a.Database())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// dropTolerant drops the database and treats a missing one as done.
func dropTolerant(cmd *cobra.Command, a App) error {
	err := a.DropSchema(cmd.Context())
	var notFound *catalog.NotFoundError
	switch {
	case errors.As(err, &notFound):
		a.Logger().Warn("database does not exist", zap.String("database", notFound.Name))
		fmt.Fprintf(cmd.OutOrStdout(), "database %s does not exist, nothing to delete\n", notFound.Name)
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database %s deleted\n", a.Database())
	return nil
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
