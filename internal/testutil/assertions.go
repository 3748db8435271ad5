package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// HasEvent reports whether the store's audit log contains an event of the
// given kind for the given run.
func HasEvent(s *MockStore, kind types.EventKind, runID string) bool {
	for _, e := range s.Events() {
		if e.Kind == kind && (runID == "" || e.RunID == runID) {
			return true
		}
	}
	return false
}
