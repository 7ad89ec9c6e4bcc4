// Package configcmder provides the config command for managing persistent
// medrag configuration stored in the .medrag/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent medrag configuration.

Configuration is stored as config.toml in the .medrag/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen, client.api_target,
  source.url, source.api_key, source.timeout_seconds,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  vector_store.provider, vector_store.target, vector_store.sqlite_path,
  etl.chunk_size, etl.chunk_overlap, etl.chunk_threshold,
  etl.embed_batch, etl.upsert_batch, etl.workers,
  llm.provider, llm.target, llm.model, llm.fallback_family, llm.timeout_seconds,
  session.ttl_seconds, rag.top_k,
  events.enabled, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  medrag config set <key> <value>    Set a configuration value
  medrag config get <key>            Get a configuration value
  medrag config list                 List all configuration values

Examples:
  medrag config set source.url http://emr.local:8069
  medrag config set embedding.model nomic-embed-text
  medrag config get llm.model
  medrag config list`

const configShortDesc string = "Manage persistent medrag configuration"

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
