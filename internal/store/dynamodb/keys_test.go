package dynamodb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

func TestKeyConstruction(t *testing.T) {
	assert.Equal(t, "RUN#01ABC", runPK("01ABC"))
	assert.Equal(t, "RUN", runSK())
	assert.Equal(t, "ARTIFACT", artifactSK())
	assert.Equal(t, "LOCK#env#dev", lockPK("env#dev"))
	assert.Equal(t, "LOCK", lockSK())
	assert.Equal(t, "APPROVAL#alice", approvalSK("alice"))
	assert.Equal(t, "ENV#prod", envPK(types.EnvProd))
	assert.Equal(t, "ENV#global", envPK(""))
}

func TestRunListSKOrdersByCreation(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Minute)

	a := runListSK(earlier, "run-a")
	b := runListSK(later, "run-b")
	assert.Less(t, a, b)
	assert.True(t, strings.HasPrefix(a, "RUN#2026-03-01T10:00:00Z"))
}

func TestEventSKIsUnique(t *testing.T) {
	ts := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		sk := eventSK(ts)
		assert.True(t, strings.HasPrefix(sk, "EVENT#"))
		if _, dup := seen[sk]; dup {
			t.Fatalf("duplicate event SK %q", sk)
		}
		seen[sk] = struct{}{}
	}
}

func TestTTLExpiry(t *testing.T) {
	assert.False(t, isExpired(0), "zero epoch means no TTL")
	assert.False(t, isExpired(time.Now().Add(time.Hour).Unix()))
	assert.True(t, isExpired(time.Now().Add(-time.Hour).Unix()))
}
