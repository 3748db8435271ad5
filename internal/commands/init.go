package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tfgate/internal/config"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new tfgate project",
		Long:  "Creates project scaffolding: a starter tfgate.yaml and per-environment terraform directories.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing tfgate project: %s\n", projectName)

	for _, env := range types.AllEnvironments() {
		path := filepath.Join(projectName, "terraform", string(env))
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", path, err)
		}
	}

	configPath := filepath.Join(projectName, config.FileName)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	configContent := `store: redis
redis:
  addr: localhost:6379
  keyPrefix: "tfgate:"

artifacts:
  type: file
  dir: .tfgate/artifacts

terraform:
  binary: terraform
  environments:
    dev:
      dir: ./terraform/dev
      backendKey: dev/terraform.tfstate
    staging:
      dir: ./terraform/staging
      backendKey: staging/terraform.tfstate
    prod:
      dir: ./terraform/prod
      backendKey: prod/terraform.tfstate

reviewers:
  staging: [alice, bob]
  prod: [alice, bob, carol]

lock:
  ttl: 15m
  maxAttempts: 5

server:
  addr: ":3000"

alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("  ✓ Project scaffolded")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  # add terraform configuration under terraform/<env>/")
	fmt.Println("  tfgate plan dev")
	return nil
}
