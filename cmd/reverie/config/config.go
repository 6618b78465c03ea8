// Package configcmder provides the config command for managing persistent
// reverie configuration stored in the .reverie/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent reverie configuration.

Configuration is stored as config.toml in the .reverie/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_dsn,
  api.listen,
  vector_store.provider, vector_store.target,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  llm.provider, llm.target, llm.model,
  summary.max_floors_per_run,
  recall.direct_threshold, recall.top_k_events, recall.top_k_atoms, recall.top_k_chunks,
  budget.total and the per-section budget keys,
  event_stream.provider, event_stream.brokers, event_stream.topic

Use subcommands to get, set, or list configuration values:
  reverie config set <key> <value>    Set a configuration value
  reverie config get <key>            Get a configuration value
  reverie config list                 List all configuration values

Examples:
  reverie config set storage.provider postgres
  reverie config set embedding.model nomic-embed-text
  reverie config get llm.provider
  reverie config list`

const configShortDesc string = "Manage persistent reverie configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
