// Package recallcmder provides the recall command for ranking stored memory
// against a query.
package recallcmder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/cmd/reverie/wiring"
	"github.com/reveriehq/reverie/pkg/recall"
)

type recallCommander struct {
	entities []string
}

const recallLongDesc string = `Rank stored memory against a query.

Prints the ranked recall result as JSON: direct and related events, causal
chains, and residual evidence.

Examples:
  reverie recall chat-42 "那次在酒馆的约定"
  reverie recall chat-42 "the tavern promise" --entity Alice`

const recallShortDesc string = "Rank stored memory against a query"

func NewRecallCmd() *cobra.Command {
	cmder := &recallCommander{}

	cmd := &cobra.Command{
		Use:   "recall <chat-id> <query>",
		Short: recallShortDesc,
		Long:  recallLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return cmder.run(rt, args[0], args[1])
		},
	}

	cmd.Flags().StringSliceVarP(&cmder.entities, "entity", "e", nil, "Entity names to focus the recall on")

	return cmd
}

func (c *recallCommander) run(rt *wiring.Runtime, chatID, query string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.Recall(ctx, chatID, query, recall.Focus{Entities: c.entities})
	if err != nil {
		return fmt.Errorf("recalling: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
