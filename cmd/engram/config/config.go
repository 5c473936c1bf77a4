// Package configcmder provides the config command for managing persistent
// engram configuration stored in the .engram/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent engram configuration.

Configuration is stored as config.toml in the .engram/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values, and environment variables with the ENGRAM_ prefix sit
between the two.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path,
  vector_store.provider, vector_store.target,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  reasoning.provider, reasoning.target, reasoning.model,
  pipeline.retrieve_limit, pipeline.search_limit, pipeline.max_retries,
  pipeline.schema_retries, pipeline.stage_timeout_secs, pipeline.commit_concurrency,
  lock.provider, lock.target, lock.ttl_secs,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  engram config set <key> <value>    Set a configuration value
  engram config get <key>            Get a configuration value
  engram config list                 List all configuration values

Examples:
  engram config set reasoning.provider anthropic
  engram config set embedding.model nomic-embed-text
  engram config get vector_store.provider
  engram config list`

const configShortDesc string = "Manage persistent engram configuration"

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
