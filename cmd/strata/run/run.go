// Package runcmder provides the run command for triggering a single
// lifecycle engine pass against one session.
package runcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/start"
	"github.com/papercomputeco/strata/pkg/utils"
)

const runLongDesc string = `Run a single lifecycle engine pass.

Engines normally run on the scheduler inside "strata serve". This
command runs one pass in-process against the configured backends,
useful for backfills and debugging.

  strata run promotion       Promote window turns into scored facts
  strata run consolidation   Consolidate facts into episodes
  strata run distillation    Distill episodes into knowledge documents

Examples:
  strata run promotion --session sess_42
  strata run consolidation -s sess_42`

const runShortDesc string = "Run a single lifecycle engine pass"

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: runShortDesc,
		Long:  runLongDesc,
	}

	cmd.AddCommand(newEngineCmd("promotion", "Promote window turns into scored facts"))
	cmd.AddCommand(newEngineCmd("consolidation", "Consolidate facts into episodes"))
	cmd.AddCommand(newEngineCmd("distillation", "Distill episodes into knowledge documents"))

	return cmd
}

type runCommander struct {
	engine    string
	sessionID string
	debug     bool
}

func newEngineCmd(engineName, short string) *cobra.Command {
	cmder := &runCommander{engine: engineName}

	cmd := &cobra.Command{
		Use:   engineName,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.sessionID, "session", "s", "", "Session ID to run against")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func (c *runCommander) run(configDir string) error {
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	sub, err := start.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building substrate: %w", err)
	}
	defer sub.Close()

	var result engine.BatchResult
	switch c.engine {
	case "promotion":
		result, err = sub.Memory.RunPromotion(ctx, c.sessionID)
	case "consolidation":
		result, err = sub.Memory.RunConsolidation(ctx, c.sessionID)
	case "distillation":
		result, err = sub.Memory.RunDistillation(ctx, c.sessionID)
	default:
		return fmt.Errorf("unknown engine: %s", c.engine)
	}
	if err != nil {
		return fmt.Errorf("running %s: %w", c.engine, err)
	}

	fmt.Printf("%s: processed=%d skipped=%d failed=%d\n",
		c.engine, result.Processed, result.Skipped, result.Failed)
	for _, f := range result.Failures {
		fmt.Printf("  failed %s: %s\n", f.Item, utils.Truncate(f.Reason, 120))
	}

	return nil
}
