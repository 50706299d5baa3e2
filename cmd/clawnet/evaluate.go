package clawnet

import (
	"fmt"
	"strings"

	"github.com/igorsilveira/clawnet/pkg/evaluator"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <text>",
	Short: "Score a piece of text with the built-in evaluators",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEvaluate,
}

var evaluateName string

func init() {
	evaluateCmd.Flags().StringVar(&evaluateName, "evaluator", "", "run a single evaluator ("+strings.Join(evaluator.Names(), ", ")+")")
}

// runEvaluate scores text offline; it needs no running node or gateway.
func runEvaluate(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	names := evaluator.Names()
	if evaluateName != "" {
		names = []string{evaluateName}
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		res, err := evaluator.Run(name, text)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%-14s %.2f  %s", name, res.Normalized(), res.Label())
		if f := res.Failure(); f != "" {
			line += "  (" + f + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
