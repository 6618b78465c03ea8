// Package memorycmder provides the memory command for building the
// token-budgeted memory block for a chat.
package memorycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/cmd/reverie/wiring"
	"github.com/reveriehq/reverie/pkg/recall"
)

type memoryCommander struct {
	entities []string
}

const memoryLongDesc string = `Build the token-budgeted memory block for a chat.

Recalls against the query and assembles constraints, events, evidence and
arcs into the text block a host would inject into its next prompt.

Examples:
  reverie memory chat-42 "我们之前说好了什么?"
  reverie memory chat-42 "what did we promise?" --entity Alice`

const memoryShortDesc string = "Build the memory block for a query"

func NewMemoryCmd() *cobra.Command {
	cmder := &memoryCommander{}

	cmd := &cobra.Command{
		Use:   "memory <chat-id> <query>",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
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

func (c *memoryCommander) run(rt *wiring.Runtime, chatID, query string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	out, err := eng.BuildMemory(ctx, chatID, query, recall.Focus{Entities: c.entities})
	if err != nil {
		return fmt.Errorf("building memory: %w", err)
	}

	fmt.Println(out.Text)
	return nil
}
