// Package redis implements the Store interface using Redis/Valkey. Suited
// to single-region setups where DynamoDB is unavailable or overkill.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/tfgate/internal/store"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*Store)(nil)

const (
	defaultRetentionTTL = 30 * 24 * time.Hour // 30 days

	// Index trim limits.
	runIndexMax   = 200
	eventIndexMax = 500
)

// casScript atomically replaces a run record only when the stored version
// matches the expected one. Missing keys fail the swap.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local decoded = cjson.decode(cur)
if tostring(decoded.version) ~= tostring(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// Store implements the Store interface backed by Redis.
type Store struct {
	client       *goredis.Client
	prefix       string
	logger       *slog.Logger
	retentionTTL time.Duration
	cas          *goredis.Script
}

// New creates a Redis-backed store.
func New(cfg *types.RedisConfig) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tfgate:"
	}
	retentionTTL := defaultRetentionTTL
	if cfg.RetentionTTL != "" {
		if d, err := time.ParseDuration(cfg.RetentionTTL); err == nil && d > 0 {
			retentionTTL = d
		}
	}

	return &Store{
		client:       client,
		prefix:       prefix,
		logger:       slog.Default(),
		retentionTTL: retentionTTL,
		cas:          goredis.NewScript(casScript),
	}
}

// NewFromClient creates a Store from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "tfgate:"
	}
	return &Store{
		client:       client,
		prefix:       prefix,
		logger:       slog.Default(),
		retentionTTL: defaultRetentionTTL,
		cas:          goredis.NewScript(casScript),
	}
}

// SetLogger overrides the default logger.
func (s *Store) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Start initializes the store connection.
func (s *Store) Start(ctx context.Context) error {
	return s.Ping(ctx)
}

// Stop closes the store connection.
func (s *Store) Stop(_ context.Context) error {
	return s.client.Close()
}

// Ping checks connectivity to the Redis server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (s *Store) Client() *goredis.Client {
	return s.client
}

func (s *Store) runKey(runID string) string      { return s.prefix + "run:" + runID }
func (s *Store) artifactKey(runID string) string { return s.prefix + "artifact:" + runID }
func (s *Store) consumedKey(runID string) string { return s.prefix + "artifact:consumed:" + runID }
func (s *Store) approvalKey(runID string) string { return s.prefix + "approvals:" + runID }
func (s *Store) lockKey(key string) string       { return s.prefix + "lock:" + key }

func (s *Store) runIndexKey(env types.Environment) string {
	return s.prefix + "runs:" + envSegment(env)
}

func (s *Store) eventIndexKey(env types.Environment) string {
	return s.prefix + "events:" + envSegment(env)
}

// envSegment partitions per-environment indexes; pre-classification entries
// land in "global".
func envSegment(env types.Environment) string {
	if env == "" {
		return "global"
	}
	return string(env)
}
