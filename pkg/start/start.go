// Package start assembles the memory substrate from configuration:
// backend drivers, tiers, engines, and the facade, with a single Close
// for everything that was opened along the way.
package start

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/cache"
	cachemem "github.com/papercomputeco/strata/pkg/cache/inmemory"
	cacheredis "github.com/papercomputeco/strata/pkg/cache/redis"
	"github.com/papercomputeco/strata/pkg/ciar"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/strata/pkg/embeddings/utils"
	"github.com/papercomputeco/strata/pkg/engine/consolidation"
	"github.com/papercomputeco/strata/pkg/engine/distillation"
	"github.com/papercomputeco/strata/pkg/engine/promotion"
	"github.com/papercomputeco/strata/pkg/facade"
	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/facts/gormstore"
	factsmem "github.com/papercomputeco/strata/pkg/facts/inmemory"
	"github.com/papercomputeco/strata/pkg/graph"
	graphmem "github.com/papercomputeco/strata/pkg/graph/inmemory"
	graphneo4j "github.com/papercomputeco/strata/pkg/graph/neo4j"
	"github.com/papercomputeco/strata/pkg/search"
	searchelastic "github.com/papercomputeco/strata/pkg/search/elastic"
	searchmem "github.com/papercomputeco/strata/pkg/search/inmemory"
	"github.com/papercomputeco/strata/pkg/synth"
	synthollama "github.com/papercomputeco/strata/pkg/synth/ollama"
	synthopenai "github.com/papercomputeco/strata/pkg/synth/openai"
	synthstatic "github.com/papercomputeco/strata/pkg/synth/static"
	"github.com/papercomputeco/strata/pkg/telemetry"
	telemetrykafka "github.com/papercomputeco/strata/pkg/telemetry/kafka"
	telemetrynop "github.com/papercomputeco/strata/pkg/telemetry/nop"
	"github.com/papercomputeco/strata/pkg/telemetry/redisstream"
	"github.com/papercomputeco/strata/pkg/tier/active"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/semantic"
	"github.com/papercomputeco/strata/pkg/tier/working"
	"github.com/papercomputeco/strata/pkg/vector"
	vecmem "github.com/papercomputeco/strata/pkg/vector/inmemory"
	vecqdrant "github.com/papercomputeco/strata/pkg/vector/qdrant"
	vecsqlite "github.com/papercomputeco/strata/pkg/vector/sqlitevec"
	"github.com/papercomputeco/strata/pkg/workspace"
)

// Substrate is the fully wired memory system plus the resources behind
// it. Callers own the lifecycle: defer Close() after a successful Build.
type Substrate struct {
	Memory  *facade.Memory
	Engines facade.Engines
	Flags   facade.Flags
	Events  *telemetry.Emitter

	closers []func() error
}

// Build constructs every backend named in cfg and assembles the facade.
// Any backend that fails to connect aborts the build; already-opened
// backends are closed before returning the error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Substrate, error) {
	s := &Substrate{}

	store, err := s.buildCache(cfg, logger)
	if err != nil {
		return nil, s.abort(err)
	}

	factsDriver, err := s.buildFacts(cfg, logger)
	if err != nil {
		return nil, s.abort(err)
	}

	embedder, err := s.buildEmbedder(cfg)
	if err != nil {
		return nil, s.abort(err)
	}

	vectorDriver, err := s.buildVector(ctx, cfg, logger)
	if err != nil {
		return nil, s.abort(err)
	}

	graphDriver, err := s.buildGraph(ctx, cfg, logger)
	if err != nil {
		return nil, s.abort(err)
	}

	searchDriver, err := s.buildSearch(ctx, cfg, logger)
	if err != nil {
		return nil, s.abort(err)
	}

	invoker, err := s.buildInvoker(cfg)
	if err != nil {
		return nil, s.abort(err)
	}

	events, err := s.buildEmitter(cfg, store, logger)
	if err != nil {
		return nil, s.abort(err)
	}
	s.Events = events

	bucketWidth, err := parseDuration(cfg.Engines.BucketWidth, "engines.bucket_width")
	if err != nil {
		return nil, s.abort(err)
	}

	activeTier := active.New(store, active.Config{}, logger, events)
	workingTier := working.New(factsDriver, logger, events)
	episodicTier := episodic.New(vectorDriver, graphDriver, embedder, episodic.Config{}, logger, events)
	semanticTier := semantic.New(searchDriver, graphDriver, invoker, logger, events)
	workspaces := workspace.New(store, workspace.Config{}, logger, events)

	scorer, err := ciar.NewScorer(ciar.DefaultWeights())
	if err != nil {
		return nil, s.abort(err)
	}

	s.Engines = facade.Engines{
		Promotion: promotion.New(activeTier, workingTier, invoker, scorer,
			promotion.Config{Threshold: cfg.Engines.Threshold}, logger, events),
		Consolidation: consolidation.New(workingTier, episodicTier, invoker,
			consolidation.Config{BucketWidth: bucketWidth}, logger, events),
		Distillation: distillation.New(episodicTier, semanticTier, invoker,
			distillation.Config{}, logger, events),
	}

	s.Flags = facade.Flags{
		Promotion:     cfg.Engines.Promotion,
		Consolidation: cfg.Engines.Consolidation,
		Distillation:  cfg.Engines.Distillation,
		Telemetry:     cfg.Telemetry.Provider != "" && cfg.Telemetry.Provider != "none",
	}

	s.Memory = facade.New(activeTier, workingTier, episodicTier, semanticTier,
		workspaces, s.Engines, s.Flags, logger)

	return s, nil
}

// Interval parses the configured scheduler interval.
func Interval(cfg *config.Config) (time.Duration, error) {
	return parseDuration(cfg.Engines.Interval, "engines.interval")
}

// Close releases every backend opened by Build, in reverse order.
func (s *Substrate) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Substrate) abort(err error) error {
	if closeErr := s.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

func (s *Substrate) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Substrate) buildCache(cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Cache.Provider {
	case "inmemory", "":
		store := cachemem.NewStore()
		s.onClose(store.Close)
		return store, nil
	case "redis":
		store, err := cacheredis.NewStore(cacheredis.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building cache store: %w", err)
		}
		s.onClose(store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Cache.Provider)
	}
}

func (s *Substrate) buildFacts(cfg *config.Config, logger *slog.Logger) (facts.Driver, error) {
	switch cfg.Facts.Provider {
	case "inmemory", "":
		driver := factsmem.NewDriver()
		s.onClose(driver.Close)
		return driver, nil
	case "sqlite", "postgres":
		store, err := gormstore.NewStore(gormstore.Config{
			Dialect: cfg.Facts.Provider,
			DSN:     cfg.Facts.DSN,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building fact store: %w", err)
		}
		s.onClose(store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported facts provider: %s", cfg.Facts.Provider)
	}
}

func (s *Substrate) buildEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   int(cfg.Embedding.Dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	s.onClose(embedder.Close)
	return embedder, nil
}

func (s *Substrate) buildVector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vector.Driver, error) {
	switch cfg.Vector.Provider {
	case "inmemory", "":
		driver := vecmem.NewDriver()
		s.onClose(driver.Close)
		return driver, nil
	case "sqlitevec":
		driver, err := vecsqlite.NewDriver(vecsqlite.Config{
			DBPath:     cfg.Vector.DBPath,
			Dimensions: cfg.Embedding.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building sqlite-vec driver: %w", err)
		}
		s.onClose(driver.Close)
		return driver, nil
	case "qdrant":
		driver, err := vecqdrant.NewDriver(ctx, vecqdrant.Config{
			Host:       cfg.Vector.Host,
			Port:       cfg.Vector.Port,
			Collection: cfg.Vector.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building qdrant driver: %w", err)
		}
		s.onClose(driver.Close)
		return driver, nil
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s", cfg.Vector.Provider)
	}
}

func (s *Substrate) buildGraph(ctx context.Context, cfg *config.Config, logger *slog.Logger) (graph.Driver, error) {
	switch cfg.Graph.Provider {
	case "inmemory", "":
		driver := graphmem.NewDriver()
		s.onClose(func() error { return driver.Close(context.Background()) })
		return driver, nil
	case "neo4j":
		driver, err := graphneo4j.NewDriver(ctx, graphneo4j.Config{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building neo4j driver: %w", err)
		}
		s.onClose(func() error { return driver.Close(context.Background()) })
		return driver, nil
	default:
		return nil, fmt.Errorf("unsupported graph provider: %s", cfg.Graph.Provider)
	}
}

func (s *Substrate) buildSearch(ctx context.Context, cfg *config.Config, logger *slog.Logger) (search.Driver, error) {
	switch cfg.Search.Provider {
	case "inmemory", "":
		driver := searchmem.NewDriver()
		s.onClose(driver.Close)
		return driver, nil
	case "elastic":
		driver, err := searchelastic.NewDriver(ctx, searchelastic.Config{
			Addresses: cfg.Search.Addresses,
			Username:  cfg.Search.Username,
			Password:  cfg.Search.Password,
			Index:     cfg.Search.Index,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building elasticsearch driver: %w", err)
		}
		s.onClose(driver.Close)
		return driver, nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Search.Provider)
	}
}

func (s *Substrate) buildInvoker(cfg *config.Config) (synth.Invoker, error) {
	switch cfg.Synth.Provider {
	case "static", "":
		invoker := synthstatic.NewInvoker()
		s.onClose(invoker.Close)
		return invoker, nil
	case "openai":
		invoker, err := synthopenai.NewInvoker(synthopenai.Config{
			BaseURL: cfg.Synth.Target,
			APIKey:  cfg.Synth.APIKey,
			Model:   cfg.Synth.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("building openai invoker: %w", err)
		}
		s.onClose(invoker.Close)
		return invoker, nil
	case "ollama":
		invoker, err := synthollama.NewInvoker(synthollama.Config{
			BaseURL: cfg.Synth.Target,
			Model:   cfg.Synth.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("building ollama invoker: %w", err)
		}
		s.onClose(invoker.Close)
		return invoker, nil
	default:
		return nil, fmt.Errorf("unsupported synth provider: %s", cfg.Synth.Provider)
	}
}

func (s *Substrate) buildEmitter(cfg *config.Config, store cache.Store, logger *slog.Logger) (*telemetry.Emitter, error) {
	var pub telemetry.Publisher

	switch cfg.Telemetry.Provider {
	case "none", "":
		pub = telemetrynop.NewPublisher()
	case "redisstream":
		pub = redisstream.NewPublisher(store, cfg.Telemetry.Stream)
	case "kafka":
		kafkaPub, err := telemetrykafka.NewPublisher(telemetrykafka.Config{
			Brokers: cfg.Telemetry.Brokers,
			Topic:   cfg.Telemetry.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("building kafka publisher: %w", err)
		}
		pub = kafkaPub
	default:
		return nil, fmt.Errorf("unsupported telemetry provider: %s", cfg.Telemetry.Provider)
	}

	// Close runs in reverse registration order: the emitter drains
	// before its publisher goes away.
	s.onClose(pub.Close)
	emitter := telemetry.NewEmitter(pub, logger)
	s.onClose(emitter.Close)

	return emitter, nil
}

func parseDuration(v, key string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
