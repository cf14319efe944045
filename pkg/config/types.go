package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent strata configuration stored as config.toml
// in the .strata/ directory. The TOML layout uses sections for logical grouping,
// one per backend plus the engine and API sections.
type Config struct {
	Version   int             `toml:"version"`
	Cache     CacheConfig     `toml:"cache"`
	Facts     FactsConfig     `toml:"facts"`
	Vector    VectorConfig    `toml:"vector"`
	Graph     GraphConfig     `toml:"graph"`
	Search    SearchConfig    `toml:"search"`
	Synth     SynthConfig     `toml:"synth"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Engines   EnginesConfig   `toml:"engines"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	API       APIConfig       `toml:"api"`
	Client    ClientConfig    `toml:"client"`
}

// CacheConfig holds the L1 cache backend settings.
type CacheConfig struct {
	// Provider is "inmemory" or "redis".
	Provider string `toml:"provider,omitempty"`
	Addr     string `toml:"addr,omitempty"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
}

// FactsConfig holds the L2 relational store settings.
type FactsConfig struct {
	// Provider is "inmemory", "sqlite", or "postgres".
	Provider string `toml:"provider,omitempty"`

	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `toml:"dsn,omitempty"`
}

// VectorConfig holds the L3 vector backend settings.
type VectorConfig struct {
	// Provider is "inmemory", "sqlitevec", or "qdrant".
	Provider   string `toml:"provider,omitempty"`
	DBPath     string `toml:"db_path,omitempty"`
	Host       string `toml:"host,omitempty"`
	Port       int    `toml:"port,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// GraphConfig holds the graph backend settings shared by L3 and L4.
type GraphConfig struct {
	// Provider is "inmemory" or "neo4j".
	Provider string `toml:"provider,omitempty"`
	URI      string `toml:"uri,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

// SearchConfig holds the L4 full-text backend settings.
type SearchConfig struct {
	// Provider is "inmemory" or "elastic".
	Provider  string   `toml:"provider,omitempty"`
	Addresses []string `toml:"addresses,omitempty"`
	Username  string   `toml:"username,omitempty"`
	Password  string   `toml:"password,omitempty"`
	Index     string   `toml:"index,omitempty"`
}

// SynthConfig holds the synthesis provider settings used by the
// promotion, consolidation, and distillation engines.
type SynthConfig struct {
	// Provider is "static", "openai", or "ollama".
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "static" or "ollama".
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EnginesConfig holds the lifecycle engine flags and tuning knobs.
// Durations are TOML strings in Go duration syntax ("1h", "5m").
type EnginesConfig struct {
	Promotion     bool `toml:"promotion"`
	Consolidation bool `toml:"consolidation"`
	Distillation  bool `toml:"distillation"`

	// Threshold is the CIAR composite promotion gate. Zero keeps the
	// engine default.
	Threshold float64 `toml:"threshold,omitempty"`

	// BucketWidth is the consolidation episode window.
	BucketWidth string `toml:"bucket_width,omitempty"`

	// Interval is the scheduler run spacing.
	Interval string `toml:"interval,omitempty"`
}

// TelemetryConfig holds the lifecycle event sink settings.
type TelemetryConfig struct {
	// Provider is "none", "redisstream", or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Stream   string   `toml:"stream,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// strata server (e.g. strata status). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"cache.provider": {
		get: func(c *Config) string { return c.Cache.Provider },
		set: func(c *Config, v string) error { c.Cache.Provider = v; return nil },
	},
	"cache.addr": {
		get: func(c *Config) string { return c.Cache.Addr },
		set: func(c *Config, v string) error { c.Cache.Addr = v; return nil },
	},
	"cache.password": {
		get: func(c *Config) string { return c.Cache.Password },
		set: func(c *Config, v string) error { c.Cache.Password = v; return nil },
	},
	"cache.db": {
		get: func(c *Config) string { return strconv.Itoa(c.Cache.DB) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for cache.db: %w", err)
			}
			c.Cache.DB = n
			return nil
		},
	},
	"facts.provider": {
		get: func(c *Config) string { return c.Facts.Provider },
		set: func(c *Config, v string) error { c.Facts.Provider = v; return nil },
	},
	"facts.dsn": {
		get: func(c *Config) string { return c.Facts.DSN },
		set: func(c *Config, v string) error { c.Facts.DSN = v; return nil },
	},
	"vector.provider": {
		get: func(c *Config) string { return c.Vector.Provider },
		set: func(c *Config, v string) error { c.Vector.Provider = v; return nil },
	},
	"vector.db_path": {
		get: func(c *Config) string { return c.Vector.DBPath },
		set: func(c *Config, v string) error { c.Vector.DBPath = v; return nil },
	},
	"vector.host": {
		get: func(c *Config) string { return c.Vector.Host },
		set: func(c *Config, v string) error { c.Vector.Host = v; return nil },
	},
	"vector.port": {
		get: func(c *Config) string {
			if c.Vector.Port == 0 {
				return ""
			}
			return strconv.Itoa(c.Vector.Port)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for vector.port: %w", err)
			}
			c.Vector.Port = n
			return nil
		},
	},
	"vector.collection": {
		get: func(c *Config) string { return c.Vector.Collection },
		set: func(c *Config, v string) error { c.Vector.Collection = v; return nil },
	},
	"graph.provider": {
		get: func(c *Config) string { return c.Graph.Provider },
		set: func(c *Config, v string) error { c.Graph.Provider = v; return nil },
	},
	"graph.uri": {
		get: func(c *Config) string { return c.Graph.URI },
		set: func(c *Config, v string) error { c.Graph.URI = v; return nil },
	},
	"graph.username": {
		get: func(c *Config) string { return c.Graph.Username },
		set: func(c *Config, v string) error { c.Graph.Username = v; return nil },
	},
	"graph.password": {
		get: func(c *Config) string { return c.Graph.Password },
		set: func(c *Config, v string) error { c.Graph.Password = v; return nil },
	},
	"search.provider": {
		get: func(c *Config) string { return c.Search.Provider },
		set: func(c *Config, v string) error { c.Search.Provider = v; return nil },
	},
	"search.addresses": {
		get: func(c *Config) string { return strings.Join(c.Search.Addresses, ",") },
		set: func(c *Config, v string) error {
			c.Search.Addresses = splitList(v)
			return nil
		},
	},
	"search.username": {
		get: func(c *Config) string { return c.Search.Username },
		set: func(c *Config, v string) error { c.Search.Username = v; return nil },
	},
	"search.password": {
		get: func(c *Config) string { return c.Search.Password },
		set: func(c *Config, v string) error { c.Search.Password = v; return nil },
	},
	"search.index": {
		get: func(c *Config) string { return c.Search.Index },
		set: func(c *Config, v string) error { c.Search.Index = v; return nil },
	},
	"synth.provider": {
		get: func(c *Config) string { return c.Synth.Provider },
		set: func(c *Config, v string) error { c.Synth.Provider = v; return nil },
	},
	"synth.target": {
		get: func(c *Config) string { return c.Synth.Target },
		set: func(c *Config, v string) error { c.Synth.Target = v; return nil },
	},
	"synth.api_key": {
		get: func(c *Config) string { return c.Synth.APIKey },
		set: func(c *Config, v string) error { c.Synth.APIKey = v; return nil },
	},
	"synth.model": {
		get: func(c *Config) string { return c.Synth.Model },
		set: func(c *Config, v string) error { c.Synth.Model = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"engines.promotion": {
		get: func(c *Config) string { return strconv.FormatBool(c.Engines.Promotion) },
		set: func(c *Config, v string) error { return setBool(&c.Engines.Promotion, "engines.promotion", v) },
	},
	"engines.consolidation": {
		get: func(c *Config) string { return strconv.FormatBool(c.Engines.Consolidation) },
		set: func(c *Config, v string) error {
			return setBool(&c.Engines.Consolidation, "engines.consolidation", v)
		},
	},
	"engines.distillation": {
		get: func(c *Config) string { return strconv.FormatBool(c.Engines.Distillation) },
		set: func(c *Config, v string) error {
			return setBool(&c.Engines.Distillation, "engines.distillation", v)
		},
	},
	"engines.threshold": {
		get: func(c *Config) string {
			if c.Engines.Threshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Engines.Threshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engines.threshold: %w", err)
			}
			c.Engines.Threshold = f
			return nil
		},
	},
	"engines.bucket_width": {
		get: func(c *Config) string { return c.Engines.BucketWidth },
		set: func(c *Config, v string) error { c.Engines.BucketWidth = v; return nil },
	},
	"engines.interval": {
		get: func(c *Config) string { return c.Engines.Interval },
		set: func(c *Config, v string) error { c.Engines.Interval = v; return nil },
	},
	"telemetry.provider": {
		get: func(c *Config) string { return c.Telemetry.Provider },
		set: func(c *Config, v string) error { c.Telemetry.Provider = v; return nil },
	},
	"telemetry.stream": {
		get: func(c *Config) string { return c.Telemetry.Stream },
		set: func(c *Config, v string) error { c.Telemetry.Stream = v; return nil },
	},
	"telemetry.brokers": {
		get: func(c *Config) string { return strings.Join(c.Telemetry.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Telemetry.Brokers = splitList(v)
			return nil
		},
	},
	"telemetry.topic": {
		get: func(c *Config) string { return c.Telemetry.Topic },
		set: func(c *Config, v string) error { c.Telemetry.Topic = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}

func setBool(target *bool, key, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = b
	return nil
}

// splitList parses a comma-separated value into a trimmed string slice.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
