package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arismoko/strudelprobe/probe"
)

func getCmdSoundmap(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "soundmap",
		Short: "Inspect window.soundMap and print keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProbeSession(gs, func(ctx context.Context, s *probe.Session) error {
				report, err := probe.InspectSoundMap(ctx, s)
				if err != nil {
					return err
				}
				return jsonPrint(gs.stdOut, report)
			})
		},
	}
}
