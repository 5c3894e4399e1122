package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/campus-assistant/internal/adapters/mcp"
)

func (c *cli) newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ask_campus and reset_session as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			return mcpadapter.NewServer(app.Chat).ServeStdio()
		},
	}
}
