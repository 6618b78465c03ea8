// Package reveriecmder
package reveriecmder

import (
	"github.com/spf13/cobra"

	archivecmder "github.com/reveriehq/reverie/cmd/reverie/archive"
	configcmder "github.com/reveriehq/reverie/cmd/reverie/config"
	memorycmder "github.com/reveriehq/reverie/cmd/reverie/memory"
	recallcmder "github.com/reveriehq/reverie/cmd/reverie/recall"
	servecmder "github.com/reveriehq/reverie/cmd/reverie/serve"
	statuscmder "github.com/reveriehq/reverie/cmd/reverie/status"
	summarizecmder "github.com/reveriehq/reverie/cmd/reverie/summarize"
	vectorscmder "github.com/reveriehq/reverie/cmd/reverie/vectors"
	versioncmder "github.com/reveriehq/reverie/cmd/version"
)

const reverieLongDesc string = `Reverie is a tiered memory engine for long conversations.

Run the server using:
  reverie serve        Run the HTTP API and MCP server

Work with a chat's memory using:
  reverie summarize    Run a summarization slice
  reverie recall       Rank stored memory against a query
  reverie memory       Build the token-budgeted memory block
  reverie status       Show a chat's memory status
  reverie vectors      Manage a chat's vector store`

const reverieShortDesc string = "Reverie - Conversational Memory Engine"

func NewReverieCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverie",
		Short: reverieShortDesc,
		Long:  reverieLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .reverie/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(summarizecmder.NewSummarizeCmd())
	cmd.AddCommand(recallcmder.NewRecallCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(vectorscmder.NewVectorsCmd())
	cmd.AddCommand(archivecmder.NewExportCmd())
	cmd.AddCommand(archivecmder.NewImportCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
