package config

const (
	defaultCacheProvider = "inmemory"
	defaultRedisAddr     = "localhost:6379"

	defaultFactsProvider = "inmemory"

	defaultVectorProvider   = "inmemory"
	defaultVectorCollection = "strata-episodes"
	defaultQdrantHost       = "localhost"
	defaultQdrantPort       = 6334

	defaultGraphProvider = "inmemory"

	defaultSearchProvider = "inmemory"
	defaultSearchIndex    = "strata-knowledge"

	defaultSynthProvider = "static"

	defaultEmbeddingProvider   = "static"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTarget     = "http://localhost:11434"

	defaultTelemetryProvider = "none"
	defaultTelemetryStream   = "strata:events"

	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultEngineInterval = "5m"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values. The default
// substrate is fully in-memory so a fresh install works with no
// external services.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Cache: CacheConfig{
			Provider: defaultCacheProvider,
			Addr:     defaultRedisAddr,
		},
		Facts: FactsConfig{
			Provider: defaultFactsProvider,
		},
		Vector: VectorConfig{
			Provider:   defaultVectorProvider,
			Host:       defaultQdrantHost,
			Port:       defaultQdrantPort,
			Collection: defaultVectorCollection,
		},
		Graph: GraphConfig{
			Provider: defaultGraphProvider,
		},
		Search: SearchConfig{
			Provider: defaultSearchProvider,
			Index:    defaultSearchIndex,
		},
		Synth: SynthConfig{
			Provider: defaultSynthProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Engines: EnginesConfig{
			Promotion:     true,
			Consolidation: true,
			Distillation:  true,
			Interval:      defaultEngineInterval,
		},
		Telemetry: TelemetryConfig{
			Provider: defaultTelemetryProvider,
			Stream:   defaultTelemetryStream,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
