// Package artifact implements durable storage for plan artifacts, keyed by
// (environment, run-id).
package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// MinRetention is the floor for artifact retention: an apply or destroy may
// happen well after planning.
const MinRetention = 24 * time.Hour

// Store persists opaque plan payloads. Artifacts for a given run are never
// reused by a different run.
type Store interface {
	Put(ctx context.Context, env types.Environment, runID string, plan []byte) (key string, err error)
	Get(ctx context.Context, env types.Environment, runID string) ([]byte, error)
	Delete(ctx context.Context, env types.Environment, runID string) error
}

// New creates an artifact store from project configuration.
func New(cfg *types.ArtifactConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("artifact store configuration is required")
	}
	switch cfg.Type {
	case "s3":
		return NewS3Store(cfg.Bucket, cfg.Prefix, cfg.Region)
	case "file":
		return NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unsupported artifact store type: %q", cfg.Type)
	}
}

// Retention parses the configured retention, enforcing the 24h floor.
func Retention(cfg *types.ArtifactConfig) time.Duration {
	if cfg == nil || cfg.Retention == "" {
		return MinRetention
	}
	d, err := time.ParseDuration(cfg.Retention)
	if err != nil || d < MinRetention {
		return MinRetention
	}
	return d
}

func objectKey(prefix string, env types.Environment, runID string) string {
	if prefix != "" {
		return fmt.Sprintf("%s/%s/%s/tfplan", prefix, env, runID)
	}
	return fmt.Sprintf("%s/%s/tfplan", env, runID)
}
