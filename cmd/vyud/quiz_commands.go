package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyud-ai/vyud/internal/app"
	"github.com/vyud-ai/vyud/internal/models"
)

func newQuizCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Inspect saved quizzes",
	}
	cmd.AddCommand(newQuizListCommand(ctx))
	cmd.AddCommand(newQuizShowCommand(ctx))
	cmd.AddCommand(newQuizPublishCommand(ctx))
	return cmd
}

func newQuizListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <email>",
		Short: "List an account's quizzes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				quizzes, err := a.Quizzes.QuizzesForOwner(runCtx, args[0], limit)
				if err != nil {
					return err
				}
				if len(quizzes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No quizzes")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(quizzes, []column[models.Quiz]{
					textColumn("ID", func(q models.Quiz) any { return q.ID }),
					textColumn("Title", func(q models.Quiz) any { return q.Title }),
					numberColumn("Questions", func(q models.Quiz) int { return len(q.Questions) }, true),
					textColumn("Visibility", func(q models.Quiz) any {
						if q.IsPublic {
							return "public"
						}
						return "private"
					}),
					textColumn("Created", func(q models.Quiz) any { return q.CreatedAt }),
				}))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of quizzes (default 50)")
	return cmd
}

func newQuizShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a quiz as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				quiz, err := a.Quizzes.QuizByID(runCtx, args[0])
				if err != nil {
					return err
				}
				if quiz == nil {
					return fmt.Errorf("quiz %s not found", args[0])
				}
				return writeJSON(cmd, quiz)
			})
		},
	}
}

func newQuizPublishCommand(ctx *commandContext) *cobra.Command {
	var private bool
	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Make a quiz reachable through the public lookup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, app.Options{}, func(runCtx context.Context, a *app.App) error {
				found, err := a.Quizzes.SetVisibility(runCtx, args[0], !private)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("quiz %s not found", args[0])
				}
				state := "public"
				if private {
					state = "private"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Quiz %s is now %s\n", args[0], state)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&private, "private", false, "Hide the quiz instead")
	return cmd
}
