// Package statuscmder provides the status command for displaying a chat's
// memory state.
package statuscmder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/cmd/reverie/wiring"
)

const statusLongDesc string = `Show a chat's memory status.

Reports the tier counts, the summarization boundary, checkpoint depth, the
vector fingerprint, and any running background tasks.

Examples:
  reverie status chat-42`

const statusShortDesc string = "Show a chat's memory status"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <chat-id>",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return runStatus(rt, args[0])
		},
	}

	return cmd
}

func runStatus(rt *wiring.Runtime, chatID string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	status, err := eng.Status(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading status: %w", err)
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
