package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vyud-ai/vyud/internal/app"
	"github.com/vyud-ai/vyud/internal/config"
	"github.com/vyud-ai/vyud/internal/database"
	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/service"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the SQL tables for the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			// withApp migrates SQL backends before running fn.
			return ctx.withApp(cmd, app.Options{}, func(_ context.Context, a *app.App) error {
				if a.Config.StoreBackend == config.BackendSupabase {
					return fmt.Errorf("the supabase backend is provisioned with `vyud schema --dialect supabase`")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema applied (%s)\n", a.Config.StoreBackend)
				return nil
			})
		},
	}
}

func newSchemaCommand() *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the DDL for a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.EqualFold(dialect, "supabase") {
				fmt.Fprint(cmd.OutOrStdout(), database.SupabaseSQL)
				return nil
			}
			d, err := database.ParseDialect(dialect)
			if err != nil {
				return err
			}
			stmts, err := database.Schema(d)
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", strings.TrimSpace(stmt))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "supabase", "supabase, mysql, postgres or sqlite")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show account and generation totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				summary, err := a.Stats.Summary(runCtx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, summary)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Accounts:    %d (%d premium)\n", summary.Accounts, summary.Premium)
				fmt.Fprintf(out, "Credits:     %d\n", summary.TotalCredits)
				fmt.Fprintf(out, "Generations: %d\n", summary.TotalGenerations)

				kinds := make([]string, 0, len(summary.ByType))
				for kind := range summary.ByType {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				if len(kinds) > 0 {
					fmt.Fprintln(out, renderTable(kinds, []column[string]{
						textColumn("Type", func(kind string) any { return kind }),
						numberColumn("Count", func(kind string) int { return summary.ByType[kind] }, true),
					}))
				}
				if len(summary.TopAccounts) > 0 {
					fmt.Fprintln(out, accountsTable(summary.TopAccounts))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newProductsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List purchasable credit packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(service.Products(), []column[models.Product]{
				textColumn("Key", func(p models.Product) any { return p.Key }),
				textColumn("Name", func(p models.Product) any { return p.Name }),
				numberColumn("Price RUB", func(p models.Product) int { return p.PriceRUB }, false),
				numberColumn("Credits", func(p models.Product) int { return p.Credits }, false),
				{title: "Days", numeric: true, cell: func(p models.Product) any {
					if p.Duration == 0 {
						return nil
					}
					return int(p.Duration.Hours() / 24)
				}},
			}))
			return nil
		},
	}
}

func newBackupCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of accounts and recent quizzes to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				if dryRun {
					snapshot, err := a.Backup.Snapshot(runCtx)
					if err != nil {
						return err
					}
					return writeJSON(cmd, snapshot)
				}
				location, err := a.Backup.Run(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), location)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the snapshot instead of uploading it")
	return cmd
}

func newExpireCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Lapse subscriptions past their expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				n, err := a.Subscriptions.ExpireLapsed(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Expired %d subscription(s)\n", n)
				return nil
			})
		},
	}
}
