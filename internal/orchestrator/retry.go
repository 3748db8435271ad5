package orchestrator

import (
	"math"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

const maxBackoff = 5 * time.Minute

// LockPolicy tunes per-environment lock acquisition: how long a held lock
// protects its environment, and how acquisition retries back off under
// contention.
type LockPolicy struct {
	TTL         time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
}

// DefaultLockPolicy returns the default lock configuration.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		TTL:         15 * time.Minute,
		MaxAttempts: 5,
		Backoff:     5 * time.Second,
		Multiplier:  2.0,
	}
}

// LockPolicyFromConfig builds a LockPolicy from file configuration, filling
// defaults for unset fields.
func LockPolicyFromConfig(cfg *types.LockConfig) LockPolicy {
	policy := DefaultLockPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.TTL != "" {
		if ttl, err := time.ParseDuration(cfg.TTL); err == nil && ttl > 0 {
			policy.TTL = ttl
		}
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffSeconds > 0 {
		policy.Backoff = time.Duration(cfg.BackoffSeconds) * time.Second
	}
	if cfg.BackoffMultiplier > 0 {
		policy.Multiplier = cfg.BackoffMultiplier
	}
	return policy
}

// CalculateBackoff returns the wait duration for a given attempt number.
// Uses exponential backoff: base * multiplier^(attempt-1), capped.
func CalculateBackoff(policy LockPolicy, attempt int) time.Duration {
	if attempt <= 1 {
		return policy.Backoff
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := time.Duration(float64(policy.Backoff) * math.Pow(multiplier, float64(attempt-1)))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
