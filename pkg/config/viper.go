package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/strata/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STRATA_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STRATA_API_LISTEN, STRATA_CACHE_ADDR, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STRATA_API_LISTEN, STRATA_GRAPH_URI, etc.
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a typed Config from the viper precedence chain.
// Every dotted key registered in setViperDefaults is read back out, so
// flag and env overrides land in the same struct the TOML file fills.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Cache: CacheConfig{
			Provider: v.GetString("cache.provider"),
			Addr:     v.GetString("cache.addr"),
			Password: v.GetString("cache.password"),
			DB:       v.GetInt("cache.db"),
		},
		Facts: FactsConfig{
			Provider: v.GetString("facts.provider"),
			DSN:      v.GetString("facts.dsn"),
		},
		Vector: VectorConfig{
			Provider:   v.GetString("vector.provider"),
			DBPath:     v.GetString("vector.db_path"),
			Host:       v.GetString("vector.host"),
			Port:       v.GetInt("vector.port"),
			Collection: v.GetString("vector.collection"),
		},
		Graph: GraphConfig{
			Provider: v.GetString("graph.provider"),
			URI:      v.GetString("graph.uri"),
			Username: v.GetString("graph.username"),
			Password: v.GetString("graph.password"),
		},
		Search: SearchConfig{
			Provider:  v.GetString("search.provider"),
			Addresses: v.GetStringSlice("search.addresses"),
			Username:  v.GetString("search.username"),
			Password:  v.GetString("search.password"),
			Index:     v.GetString("search.index"),
		},
		Synth: SynthConfig{
			Provider: v.GetString("synth.provider"),
			Target:   v.GetString("synth.target"),
			APIKey:   v.GetString("synth.api_key"),
			Model:    v.GetString("synth.model"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Engines: EnginesConfig{
			Promotion:     v.GetBool("engines.promotion"),
			Consolidation: v.GetBool("engines.consolidation"),
			Distillation:  v.GetBool("engines.distillation"),
			Threshold:     v.GetFloat64("engines.threshold"),
			BucketWidth:   v.GetString("engines.bucket_width"),
			Interval:      v.GetString("engines.interval"),
		},
		Telemetry: TelemetryConfig{
			Provider: v.GetString("telemetry.provider"),
			Stream:   v.GetString("telemetry.stream"),
			Brokers:  v.GetStringSlice("telemetry.brokers"),
			Topic:    v.GetString("telemetry.topic"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Cache
	v.SetDefault("cache.provider", d.Cache.Provider)
	v.SetDefault("cache.addr", d.Cache.Addr)
	v.SetDefault("cache.password", d.Cache.Password)
	v.SetDefault("cache.db", d.Cache.DB)

	// Facts
	v.SetDefault("facts.provider", d.Facts.Provider)
	v.SetDefault("facts.dsn", d.Facts.DSN)

	// Vector
	v.SetDefault("vector.provider", d.Vector.Provider)
	v.SetDefault("vector.db_path", d.Vector.DBPath)
	v.SetDefault("vector.host", d.Vector.Host)
	v.SetDefault("vector.port", d.Vector.Port)
	v.SetDefault("vector.collection", d.Vector.Collection)

	// Graph
	v.SetDefault("graph.provider", d.Graph.Provider)
	v.SetDefault("graph.uri", d.Graph.URI)
	v.SetDefault("graph.username", d.Graph.Username)
	v.SetDefault("graph.password", d.Graph.Password)

	// Search
	v.SetDefault("search.provider", d.Search.Provider)
	v.SetDefault("search.addresses", d.Search.Addresses)
	v.SetDefault("search.username", d.Search.Username)
	v.SetDefault("search.password", d.Search.Password)
	v.SetDefault("search.index", d.Search.Index)

	// Synth
	v.SetDefault("synth.provider", d.Synth.Provider)
	v.SetDefault("synth.target", d.Synth.Target)
	v.SetDefault("synth.api_key", d.Synth.APIKey)
	v.SetDefault("synth.model", d.Synth.Model)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Engines
	v.SetDefault("engines.promotion", d.Engines.Promotion)
	v.SetDefault("engines.consolidation", d.Engines.Consolidation)
	v.SetDefault("engines.distillation", d.Engines.Distillation)
	v.SetDefault("engines.threshold", d.Engines.Threshold)
	v.SetDefault("engines.bucket_width", d.Engines.BucketWidth)
	v.SetDefault("engines.interval", d.Engines.Interval)

	// Telemetry
	v.SetDefault("telemetry.provider", d.Telemetry.Provider)
	v.SetDefault("telemetry.stream", d.Telemetry.Stream)
	v.SetDefault("telemetry.brokers", d.Telemetry.Brokers)
	v.SetDefault("telemetry.topic", d.Telemetry.Topic)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
