package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func getCmdList(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(gs)
			if err != nil {
				return err
			}
			pages, err := client.ListPages(gs.ctx)
			if err != nil {
				return err
			}
			for _, p := range pages {
				fmt.Fprintf(gs.stdOut, "- %s  %s  %s\n", p.ID, p.Title, p.URL)
			}
			return nil
		},
	}
}
