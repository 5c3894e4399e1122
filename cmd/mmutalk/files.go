package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/campus-assistant/internal/bootstrap"
)

func (c *cli) newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List the corpus files and their categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.New(cmd.Context(), c.cfg, bootstrap.WithoutQueue())
			if err != nil {
				return err
			}
			defer app.Close()

			files, err := app.Corpus.Files(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				fmt.Fprintf(out, "%s\t%s\n", f.Category, f.Filename)
			}
			return nil
		},
	}
}
