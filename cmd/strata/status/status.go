// Package statuscmder provides the status command for checking the
// health of a running strata server.
package statuscmder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/config"
)

const statusLongDesc string = `Check the health of a running strata server.

Queries the /health endpoint of the configured API target and reports
the status of each memory tier. The target comes from client.api_target
in config.toml, overridable with --api-target.

Examples:
  strata status
  strata status --api-target http://memory.internal:8080`

const statusShortDesc string = "Check a running strata server"

const statusTimeout = 5 * time.Second

type StatusCommander struct {
	apiTarget string
}

func NewStatusCmd() *cobra.Command {
	cmder := &StatusCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagAPITarget})

			return cmder.run(v.GetString("client.api_target"))
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

type healthResponse struct {
	Tiers map[string]string `json:"tiers"`
}

func (c *StatusCommander) run(target string) error {
	client := &http.Client{Timeout: statusTimeout}

	resp, err := client.Get(target + "/health")
	if err != nil {
		return fmt.Errorf("reaching %s: %w", target, err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("%s healthy\n\n", target)
	} else {
		fmt.Printf("%s degraded (HTTP %d)\n\n", target, resp.StatusCode)
	}

	tiers := make([]string, 0, len(health.Tiers))
	for tier := range health.Tiers {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)

	for _, tier := range tiers {
		fmt.Printf("  %-10s %s\n", tier, health.Tiers[tier])
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server reported unhealthy tiers")
	}

	return nil
}
