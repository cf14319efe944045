package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --session
// on promote, consolidate, and distill).
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag registry keys to Flag structs that hold
// their name, shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen      = "listen"
	FlagAPITarget      = "api-target"
	FlagCacheProvider  = "cache-provider"
	FlagCacheAddr      = "cache-addr"
	FlagFactsProvider  = "facts-provider"
	FlagFactsDSN       = "facts-dsn"
	FlagVectorProvider = "vector-provider"
	FlagGraphProvider  = "graph-provider"
	FlagSearchProvider = "search-provider"
	FlagSynthProvider  = "synth-provider"
	FlagSynthTarget    = "synth-target"
	FlagSynthModel     = "synth-model"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagEmbeddingDims  = "embedding-dimensions"
	FlagInterval       = "interval"
)

// DefaultFlagSet returns the standard flag definitions shared by the
// serve and engine commands.
func DefaultFlagSet() FlagSet {
	return FlagSet{
		FlagAPIListen: {
			Name: "listen", Shorthand: "l", ViperKey: "api.listen",
			Description: "Address for the API server to listen on",
		},
		FlagAPITarget: {
			Name: "api-target", ViperKey: "client.api_target",
			Description: "URL of a running strata API server",
		},
		FlagCacheProvider: {
			Name: "cache-provider", ViperKey: "cache.provider",
			Description: "Cache backend (inmemory, redis)",
		},
		FlagCacheAddr: {
			Name: "cache-addr", ViperKey: "cache.addr",
			Description: "Redis address (host:port)",
		},
		FlagFactsProvider: {
			Name: "facts-provider", ViperKey: "facts.provider",
			Description: "Fact store backend (inmemory, sqlite, postgres)",
		},
		FlagFactsDSN: {
			Name: "facts-dsn", ViperKey: "facts.dsn",
			Description: "Fact store path (sqlite) or connection string (postgres)",
		},
		FlagVectorProvider: {
			Name: "vector-provider", ViperKey: "vector.provider",
			Description: "Vector backend (inmemory, sqlitevec, qdrant)",
		},
		FlagGraphProvider: {
			Name: "graph-provider", ViperKey: "graph.provider",
			Description: "Graph backend (inmemory, neo4j)",
		},
		FlagSearchProvider: {
			Name: "search-provider", ViperKey: "search.provider",
			Description: "Full-text backend (inmemory, elastic)",
		},
		FlagSynthProvider: {
			Name: "synth-provider", ViperKey: "synth.provider",
			Description: "Synthesis provider (static, openai, ollama)",
		},
		FlagSynthTarget: {
			Name: "synth-target", ViperKey: "synth.target",
			Description: "Synthesis provider base URL",
		},
		FlagSynthModel: {
			Name: "synth-model", ViperKey: "synth.model",
			Description: "Synthesis model name",
		},
		FlagEmbeddingProv: {
			Name: "embedding-provider", ViperKey: "embedding.provider",
			Description: "Embedding provider (static, ollama)",
		},
		FlagEmbeddingTgt: {
			Name: "embedding-target", ViperKey: "embedding.target",
			Description: "Embedding provider base URL",
		},
		FlagEmbeddingModel: {
			Name: "embedding-model", ViperKey: "embedding.model",
			Description: "Embedding model name",
		},
		FlagEmbeddingDims: {
			Name: "embedding-dimensions", ViperKey: "embedding.dimensions",
			Description: "Embedding dimensionality",
		},
		FlagInterval: {
			Name: "interval", ViperKey: "engines.interval",
			Description: "Scheduler run spacing (Go duration, e.g. 5m)",
		},
	}
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
