package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

func (c *cli) newAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.Chat.Start(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			answer, err := app.Chat.Ask(cmd.Context(), session.ID, strings.Join(args, " "))
			if err != nil {
				if domain.IsKind(err, domain.ErrInvalidInput) {
					return err
				}
				slog.Error("ask_failed", "error", err)
				fmt.Fprintln(out, domain.FallbackMessage)
				return nil
			}

			fmt.Fprintln(out, answer.Text)
			if showSources {
				fmt.Fprintln(out)
				for _, src := range answer.Sources {
					fmt.Fprintf(out, "- %s / %s (%.3f)\n", src.Chunk.Category, src.Chunk.Title, src.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "list the retrieved chunks after the answer")
	return cmd
}
