package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vyud-ai/vyud/internal/app"
	"github.com/vyud-ai/vyud/internal/models"
)

func newAccountCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and adjust credit balances",
	}
	cmd.AddCommand(newAccountEnsureCommand(ctx))
	cmd.AddCommand(newAccountBalanceCommand(ctx))
	cmd.AddCommand(newAccountAdjustCommand(ctx, "credit", "Add credits, creating the account when missing"))
	cmd.AddCommand(newAccountAdjustCommand(ctx, "debit", "Subtract credits when the balance covers them"))
	cmd.AddCommand(newAccountChargeCommand(ctx))
	cmd.AddCommand(newAccountRegisterCommand(ctx))
	cmd.AddCommand(newAccountLoginCommand(ctx))
	cmd.AddCommand(newAccountListCommand(ctx))
	return cmd
}

func newAccountEnsureCommand(ctx *commandContext) *cobra.Command {
	var telegramID int64
	var name string
	cmd := &cobra.Command{
		Use:   "ensure <email>",
		Short: "Create the account with the welcome grant if it does not exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				profile := models.Profile{DisplayName: name}
				if cmd.Flags().Changed("telegram-id") {
					profile.TelegramID = &telegramID
				}
				acc, created, err := a.Credits.EnsureAccount(runCtx, args[0], profile)
				if err != nil {
					return err
				}
				verb := "Existing"
				if created {
					verb = "Created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s account %s: %d credits\n", verb, acc.Key, acc.Credits)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Telegram user id to link")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func newAccountBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <email>",
		Short: "Print the current balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				balance, err := a.Credits.GetBalance(runCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), balance)
				return nil
			})
		},
	}
}

func newAccountAdjustCommand(ctx *commandContext, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				op := a.Credits.Credit
				if use == "debit" {
					op = a.Credits.Debit
				}
				ok, err := op(runCtx, args[0], amount)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: insufficient credits", use)
				}
				balance, err := a.Credits.GetBalance(runCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balance: %d\n", balance)
				return nil
			})
		},
	}
}

func newAccountChargeCommand(ctx *commandContext) *cobra.Command {
	var telegramID int64
	cmd := &cobra.Command{
		Use:   "charge <email> <kind>",
		Short: "Spend one credit on a generation and record it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				var tg *int64
				if cmd.Flags().Changed("telegram-id") {
					tg = &telegramID
				}
				ok, err := a.Credits.Charge(runCtx, args[0], args[1], tg)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("charge: insufficient credits")
				}
				balance, err := a.Credits.GetBalance(runCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balance: %d\n", balance)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Telegram user id recorded with the generation")
	return cmd
}

func newAccountRegisterCommand(ctx *commandContext) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create a password account with the welcome grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				acc, err := a.Credits.Register(runCtx, args[0], password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s: %d credits\n", acc.Key, acc.Credits)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAccountLoginCommand(ctx *commandContext) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Check an email and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				acc, err := a.Credits.Authenticate(runCtx, args[0], password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s: %d credits\n", acc.Key, acc.Credits)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAccountListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				accounts, err := a.Credits.ListAccounts(runCtx)
				if err != nil {
					return err
				}
				if asJSON {
					if accounts == nil {
						accounts = []models.Account{}
					}
					return writeJSON(cmd, accounts)
				}
				if len(accounts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), accountsTable(accounts))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func accountsTable(accounts []models.Account) string {
	return renderTable(accounts, []column[models.Account]{
		textColumn("Email", func(a models.Account) any { return a.Key }),
		numberColumn("Credits", func(a models.Account) int { return a.Credits }, true),
		numberColumn("Generations", func(a models.Account) int { return a.Generations }, true),
		textColumn("Tariff", func(a models.Account) any { return a.Tariff }),
		textColumn("Expires", func(a models.Account) any { return a.SubscriptionExpires }),
		{title: "Telegram", cell: func(a models.Account) any { return a.TelegramID }, numeric: true},
	})
}
