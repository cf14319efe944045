package main

import (
	"os"

	servecmder "github.com/papercomputeco/strata/cmd/strata/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "strataapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .strata config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
