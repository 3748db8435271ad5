// Package config handles loading and validation of tfgate.yaml project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// FileName is the expected configuration file name.
const FileName = "tfgate.yaml"

// Load reads and parses tfgate.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Store {
	case "":
		return fmt.Errorf("store is required")
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when store is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case "redis":
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when store is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	default:
		return fmt.Errorf("unknown store %q (want dynamodb or redis)", cfg.Store)
	}

	if cfg.Terraform == nil || len(cfg.Terraform.Environments) == 0 {
		return fmt.Errorf("terraform.environments is required")
	}
	for env, ec := range cfg.Terraform.Environments {
		if _, err := types.ParseEnvironment(string(env)); err != nil {
			return fmt.Errorf("terraform.environments: %w", err)
		}
		if ec.Dir == "" {
			return fmt.Errorf("terraform.environments.%s.dir is required", env)
		}
		if ec.BackendKey == "" {
			return fmt.Errorf("terraform.environments.%s.backendKey is required", env)
		}
	}

	if cfg.Artifacts != nil {
		switch cfg.Artifacts.Type {
		case "", "file":
			// Dir defaults to a workspace-relative path.
		case "s3":
			if cfg.Artifacts.Bucket == "" {
				return fmt.Errorf("artifacts.bucket is required when artifacts.type is s3")
			}
		default:
			return fmt.Errorf("unknown artifacts.type %q (want s3 or file)", cfg.Artifacts.Type)
		}
	}

	for env := range cfg.Reviewers {
		if _, err := types.ParseEnvironment(string(env)); err != nil {
			return fmt.Errorf("reviewers: %w", err)
		}
	}

	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole:
		case types.AlertWebhook:
			if a.URL == "" {
				return fmt.Errorf("alerts[%d]: webhook url is required", i)
			}
		case types.AlertFile:
			if a.Path == "" {
				return fmt.Errorf("alerts[%d]: file path is required", i)
			}
		case types.AlertSNS:
			if a.TopicARN == "" {
				return fmt.Errorf("alerts[%d]: sns topicArn is required", i)
			}
		default:
			return fmt.Errorf("alerts[%d]: unknown type %q", i, a.Type)
		}
	}

	return nil
}
