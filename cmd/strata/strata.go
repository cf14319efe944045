// Package stratacmder
package stratacmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/strata/cmd/strata/config"
	runcmder "github.com/papercomputeco/strata/cmd/strata/run"
	servecmder "github.com/papercomputeco/strata/cmd/strata/serve"
	statuscmder "github.com/papercomputeco/strata/cmd/strata/status"
	versioncmder "github.com/papercomputeco/strata/cmd/version"
)

const strataLongDesc string = `Strata is a tiered memory substrate for conversational agents.

Turns flow through four tiers: the active window, scored working
facts, episodic summaries, and distilled knowledge documents. Three
background engines move memory between tiers.

Run the server using:
  strata serve              Run the API server with the scheduler
  strata run promotion      Run a single promotion pass
  strata status             Check a running server`

const strataShortDesc string = "Strata - Tiered Agent Memory"

func NewStrataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strata",
		Short: strataShortDesc,
		Long:  strataLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .strata/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
