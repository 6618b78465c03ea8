// Package vectorscmder provides the vectors command for verifying and
// rebuilding a chat's vector store.
package vectorscmder

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/cmd/reverie/wiring"
	"github.com/reveriehq/reverie/pkg/engine"
)

const vectorsLongDesc string = `Manage a chat's vector store.

Vectors carry the fingerprint of the embedder that produced them. After
switching embedding models, verify reports the mismatch and rebuild
regenerates every vector with the active embedder.

Use subcommands:
  reverie vectors verify <chat-id>     Check the vector fingerprint
  reverie vectors rebuild <chat-id>    Drop and regenerate all vectors`

const vectorsShortDesc string = "Manage a chat's vector store"

func NewVectorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectors",
		Short: vectorsShortDesc,
		Long:  vectorsLongDesc,
	}

	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newRebuildCmd())

	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <chat-id>",
		Short: "Check the vector fingerprint against the active embedder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return runVerify(rt, args[0])
		},
	}
}

func runVerify(rt *wiring.Runtime, chatID string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.VerifyVectors(ctx, chatID); err != nil {
		if errors.Is(err, engine.ErrFingerprintMismatch) {
			fmt.Printf("vectors are stale: %v\nrun: reverie vectors rebuild %s\n", err, chatID)
			return nil
		}
		return err
	}

	fmt.Println("vectors match the active embedder")
	return nil
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <chat-id>",
		Short: "Drop and regenerate all vectors with the active embedder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return runRebuild(rt, args[0])
		},
	}
}

func runRebuild(rt *wiring.Runtime, chatID string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.RebuildVectors(ctx, chatID); err != nil {
		return fmt.Errorf("rebuilding vectors: %w", err)
	}

	fmt.Println("vectors rebuilt")
	return nil
}
