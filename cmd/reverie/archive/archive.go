// Package archivecmder provides the export and import commands for moving a
// chat's memory between installations.
package archivecmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/cmd/reverie/wiring"
)

const exportLongDesc string = `Export a chat's memory to a tar.gz archive.

The archive carries every memory tier, the summary state, checkpoints and
vectors, and can be imported into another installation.

Examples:
  reverie export chat-42 chat-42.tar.gz`

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <chat-id> <file>",
		Short: "Export a chat's memory to an archive",
		Long:  exportLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return runExport(rt, args[0], args[1])
		},
	}

	return cmd
}

func runExport(rt *wiring.Runtime, chatID, path string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	if err := eng.Export(ctx, chatID, f); err != nil {
		return fmt.Errorf("exporting: %w", err)
	}

	fmt.Printf("exported %s to %s\n", chatID, path)
	return nil
}

const importLongDesc string = `Import a chat's memory from a tar.gz archive.

Replaces the chat's stored memory with the archive contents. The archive is
validated in full before anything is written.

Examples:
  reverie import chat-42 chat-42.tar.gz`

func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <chat-id> <file>",
		Short: "Import a chat's memory from an archive",
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := wiring.Init(cmd)
			if err != nil {
				return err
			}
			return runImport(rt, args[0], args[1])
		},
	}

	return cmd
}

func runImport(rt *wiring.Runtime, chatID, path string) error {
	defer rt.Logger.Sync()

	ctx := context.Background()
	eng, err := wiring.BuildEngine(ctx, rt.Viper, rt.ConfigDir, rt.Logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive file: %w", err)
	}
	defer f.Close()

	if err := eng.Import(ctx, chatID, f); err != nil {
		return fmt.Errorf("importing: %w", err)
	}

	fmt.Printf("imported %s from %s\n", chatID, path)
	return nil
}
