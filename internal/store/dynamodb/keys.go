package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// PK/SK prefix constants.
const (
	prefixRun      = "RUN#"
	prefixEnv      = "ENV#"
	prefixLock     = "LOCK#"
	prefixApproval = "APPROVAL#"
	prefixEvent    = "EVENT#"

	skRun      = "RUN"
	skArtifact = "ARTIFACT"
	skLock     = "LOCK"

	// globalEnvPK partitions audit events that precede classification and
	// so have no target environment yet.
	globalEnvPK = prefixEnv + "global"
)

func runPK(runID string) string { return prefixRun + runID }
func lockPK(key string) string  { return prefixLock + key }

func envPK(env types.Environment) string {
	if env == "" {
		return globalEnvPK
	}
	return prefixEnv + string(env)
}

func runSK() string      { return skRun }
func artifactSK() string { return skArtifact }
func lockSK() string     { return skLock }

func approvalSK(reviewer string) string { return prefixApproval + reviewer }

// runListSK orders an environment's run-list copies by creation time.
func runListSK(createdAt time.Time, runID string) string {
	return prefixRun + createdAt.UTC().Format(time.RFC3339Nano) + "#" + runID
}

// eventSK orders audit events by millisecond timestamp, with a random nonce
// to keep same-millisecond events distinct.
func eventSK(ts time.Time) string {
	millis := ts.UnixMilli()
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixEvent, millis, hex.EncodeToString(nonce))
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}
