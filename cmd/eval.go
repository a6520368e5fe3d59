package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arismoko/strudelprobe/probe"
)

func getCmdEval(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a JavaScript expression in the selected tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProbeSession(gs, func(ctx context.Context, s *probe.Session) error {
				outcome, err := s.Evaluate(ctx, args[0])
				if err != nil {
					return err
				}
				switch outcome.Kind {
				case probe.KindException:
					return &probe.ExceptionError{Exception: outcome.Exception}
				case probe.KindValue:
					// String values print raw, everything else as JSON.
					if str, ok := outcome.Value.(string); ok {
						_, err := fmt.Fprintln(gs.stdOut, str)
						return err
					}
					return jsonPrint(gs.stdOut, outcome.Value)
				default:
					return jsonPrint(gs.stdOut, outcome.Remote)
				}
			})
		},
	}
}
