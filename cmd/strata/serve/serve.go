// Package servecmder provides the serve command for running the API
// server together with the background engine scheduler.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/api"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/engine/scheduler"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/start"
)

// logFileName is the JSON log written next to config.toml.
const logFileName = "strata.log"

type ServeCommander struct {
	listen            string
	cacheProvider     string
	cacheAddr         string
	factsProvider     string
	factsDSN          string
	vectorProvider    string
	graphProvider     string
	searchProvider    string
	synthProvider     string
	synthTarget       string
	synthModel        string
	embeddingProvider string
	embeddingTarget   string
	interval          string
	configDir         string
	debug             bool
}

// serveFlags is the set of registry keys the serve command binds into
// the viper precedence chain.
var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagCacheProvider,
	config.FlagCacheAddr,
	config.FlagFactsProvider,
	config.FlagFactsDSN,
	config.FlagVectorProvider,
	config.FlagGraphProvider,
	config.FlagSearchProvider,
	config.FlagSynthProvider,
	config.FlagSynthTarget,
	config.FlagSynthModel,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagInterval,
}

const serveLongDesc string = `Run the strata API server.

The server exposes the memory substrate over HTTP and, when any
lifecycle engine is enabled, runs the background scheduler that
periodically promotes, consolidates, and distills tracked sessions.

Backends default to in-memory implementations. Point individual tiers
at real infrastructure through config.toml, STRATA_* environment
variables, or the flags below.

Examples:
  strata serve
  strata serve --listen :9090 --cache-provider redis
  STRATA_GRAPH_PROVIDER=neo4j strata serve`

const serveShortDesc string = "Run the strata API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, serveFlags)

			return cmder.run(config.FromViper(v))
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagCacheProvider, &cmder.cacheProvider)
	config.AddStringFlag(cmd, fs, config.FlagCacheAddr, &cmder.cacheAddr)
	config.AddStringFlag(cmd, fs, config.FlagFactsProvider, &cmder.factsProvider)
	config.AddStringFlag(cmd, fs, config.FlagFactsDSN, &cmder.factsDSN)
	config.AddStringFlag(cmd, fs, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagGraphProvider, &cmder.graphProvider)
	config.AddStringFlag(cmd, fs, config.FlagSearchProvider, &cmder.searchProvider)
	config.AddStringFlag(cmd, fs, config.FlagSynthProvider, &cmder.synthProvider)
	config.AddStringFlag(cmd, fs, config.FlagSynthTarget, &cmder.synthTarget)
	config.AddStringFlag(cmd, fs, config.FlagSynthModel, &cmder.synthModel)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, fs, config.FlagInterval, &cmder.interval)

	return cmd
}

func (c *ServeCommander) run(cfg *config.Config) error {
	log := c.newLogger()

	ctx := context.Background()

	sub, err := start.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building substrate: %w", err)
	}
	defer sub.Close()

	interval, err := start.Interval(cfg)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, sub.Memory, log)

	// Scheduler only carries the engines that are enabled; a fully
	// disabled config serves the API with no background work.
	runners := make(map[string]scheduler.Runner)
	if sub.Flags.Promotion {
		runners["promotion"] = sub.Engines.Promotion
	}
	if sub.Flags.Consolidation {
		runners["consolidation"] = sub.Engines.Consolidation
	}
	if sub.Flags.Distillation {
		runners["distillation"] = sub.Engines.Distillation
	}

	if len(runners) > 0 {
		pool, err := scheduler.NewPool(runners, scheduler.Config{Interval: interval}, log)
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
		defer pool.Close()

		server.SetTracker(pool)

		log.Info("scheduler running",
			"engines", len(runners),
			"interval", interval.String(),
		)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// newLogger writes pretty output to stdout and, when the .strata/
// directory resolves, JSON records to strata.log alongside it.
func (c *ServeCommander) newLogger() *slog.Logger {
	pretty := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return pretty
	}

	logFile, err := os.OpenFile(filepath.Join(dir, logFileName),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return pretty
	}

	return logger.Multi(
		pretty,
		logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(logFile)),
	)
}
