package main

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kirillkom/campus-assistant/internal/adapters/tui"
	"github.com/kirillkom/campus-assistant/internal/observability/logging"
)

func (c *cli) newChatCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The terminal belongs to the UI; logs go to a file or nowhere.
			if logFile != "" {
				f, err := tea.LogToFile(logFile, "mmutalk")
				if err != nil {
					return err
				}
				defer f.Close()
				slog.SetDefault(logging.NewWithWriter(f, "mmutalk", c.cfg.LogLevel, c.cfg.LogFormat))
			} else {
				discardLogs()
			}

			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			model := tui.New(cmd.Context(), app.Chat, app.Formatter)
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file while the chat is open")
	return cmd
}
