package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "tfgate",
		Short: "Gated multi-environment Terraform deployment orchestrator",
		Long: `tfgate drives Terraform deployments through a classify, plan, gate,
deploy pipeline. Plans are stored as single-use artifacts, environments are
serialized behind distributed locks, and staging and production changes wait
behind reviewer approval gates.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewPlanCmd(),
		commands.NewApplyCmd(),
		commands.NewDestroyCmd(),
		commands.NewApproveCmd(),
		commands.NewStatusCmd(),
		commands.NewRunsCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		var exit *commands.ExitCodeError
		if errors.As(err, &exit) {
			if exit.Code != 0 && exit.Msg != "" {
				fmt.Fprintln(os.Stderr, exit.Msg)
			}
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
