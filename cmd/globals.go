package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arismoko/strudelprobe/probe"
)

func getCmdGlobals(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "globals",
		Short: "List global keys matching sound/sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProbeSession(gs, func(ctx context.Context, s *probe.Session) error {
				val, err := probe.ListGlobals(ctx, s)
				if err != nil {
					return err
				}
				return jsonPrint(gs.stdOut, val)
			})
		},
	}
}
