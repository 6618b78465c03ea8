// Package summarizecmder provides the summarize command for running
// summarization slices against a chat.
package summarizecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/cmd/reverie/wiring"
)

type summarizeCommander struct {
	targetFloor int
	all         bool
}

const summarizeLongDesc string = `Run a summarization slice toward the target floor.

Summarization is incremental: one run covers at most summary.max_floors_per_run
floors past the current boundary. Pass --all to keep running slices until the
boundary reaches the target floor.

Examples:
  reverie summarize chat-42 --target-floor 120
  reverie summarize chat-42 --target-floor 120 --all`

const summarizeShortDesc string = "Run a summarization slice"

func NewSummarizeCmd() *cobra.Command {
	cmder := &summarizeCommander{}

	cmd := &cobra.Command{
		Use:   "summarize <chat-id>",
		Short: summarizeShortDesc,
		Long:  summarizeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return cmder.run(rt, args[0])
		},
	}

	cmd.Flags().IntVarP(&cmder.targetFloor, "target-floor", "t", 0, "Floor to summarize toward")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Run slices until the boundary reaches the target floor")

	return cmd
}

func (c *summarizeCommander) run(rt *wiring.Runtime, chatID string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	for {
		result, err := eng.Summarize(ctx, chatID, c.targetFloor)
		if err != nil {
			return fmt.Errorf("summarizing: %w", err)
		}

		if result.NoOp {
			fmt.Printf("nothing to summarize, boundary at floor %d\n", result.EndFloor)
			return nil
		}

		fmt.Printf("summarized floors %d-%d: %d events, %d fact updates\n",
			result.StartFloor, result.EndFloor, len(result.Events), len(result.FactUpdates))

		if !c.all || result.EndFloor >= c.targetFloor {
			return nil
		}
	}
}
