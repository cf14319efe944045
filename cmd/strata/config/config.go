// Package configcmder provides the config command for managing persistent
// strata configuration stored in the .strata/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent strata configuration.

Configuration is stored as config.toml in the .strata/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  cache.provider, cache.addr,
  facts.provider, facts.dsn,
  vector.provider, vector.db_path, vector.host, vector.port, vector.collection,
  graph.provider, graph.uri, graph.username, graph.password,
  search.provider, search.addresses, search.index,
  synth.provider, synth.target, synth.api_key, synth.model,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  engines.promotion, engines.consolidation, engines.distillation,
  engines.threshold, engines.bucket_width, engines.interval,
  telemetry.provider, telemetry.stream, telemetry.brokers, telemetry.topic,
  api.listen, client.api_target

Use subcommands to get, set, or list configuration values:
  strata config set <key> <value>    Set a configuration value
  strata config get <key>            Get a configuration value
  strata config list                 List all configuration values

Examples:
  strata config set graph.provider neo4j
  strata config set engines.threshold 0.6
  strata config get cache.provider
  strata config list`

const configShortDesc string = "Manage persistent strata configuration"

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
