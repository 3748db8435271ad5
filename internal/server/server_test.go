package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/internal/artifact"
	"github.com/dwsmith1983/tfgate/internal/deployer"
	"github.com/dwsmith1983/tfgate/internal/gate"
	"github.com/dwsmith1983/tfgate/internal/orchestrator"
	"github.com/dwsmith1983/tfgate/internal/planner"
	"github.com/dwsmith1983/tfgate/internal/testutil"
	"github.com/dwsmith1983/tfgate/pkg/types"
)

func setupTestServer(t *testing.T) (*httptest.Server, *testutil.MockStore) {
	t.Helper()
	return setupTestServerWithOpts(t, "", 0)
}

func setupTestServerWithOpts(t *testing.T, apiKey string, maxBody int64) (*httptest.Server, *testutil.MockStore) {
	t.Helper()
	st := testutil.NewMockStore()
	eng := testutil.NewMockEngine()
	arts, err := artifact.NewFileStore(t.TempDir())
	require.NoError(t, err)

	g := gate.New(gate.StoreOracle{Lister: st},
		gate.WithReviewers(map[types.Environment][]string{
			types.EnvStaging: {"alice", "bob"},
			types.EnvProd:    {"alice", "bob", "carol"},
		}),
		gate.WithClock(func() time.Time { return time.Now().Add(time.Hour) }),
	)
	orch := orchestrator.New(st,
		planner.New(eng, arts, st),
		deployer.New(eng, arts, st),
		g,
	)

	srv := New(":0", orch, st, apiKey, maxBody)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts, st
}

func decodeRun(t *testing.T, resp *http.Response) types.RunContext {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var run types.RunContext
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	return run
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStartRunPushToDev(t *testing.T) {
	ts, st := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"dev","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	run := decodeRun(t, resp)
	assert.Equal(t, types.RunDone, run.Status)
	assert.Equal(t, types.EnvDev, run.Environment)
	require.NotEmpty(t, run.RunID)

	// The run is retrievable and the environment lock is released.
	resp, err = http.Get(ts.URL + "/api/runs/" + run.RunID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeRun(t, resp)
	assert.Equal(t, run.RunID, fetched.RunID)
	assert.False(t, st.LockHeld("env#dev"))
}

func TestStartRunMalformedEvent(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","commit":"abc1234"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	run := decodeRun(t, resp)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Equal(t, types.StageClassify, run.FailureStage)
}

func TestStartRunInvalidJSON(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalUnblocksStagingRun(t *testing.T) {
	ts, _ := setupTestServer(t)

	// A push to staging needs one approval, so the run parks as BLOCKED.
	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"staging","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	run := decodeRun(t, resp)
	require.Equal(t, types.RunBlocked, run.Status)

	// Recording the approval re-evaluates the gate in the same request.
	resp, err = http.Post(ts.URL+"/api/runs/"+run.RunID+"/approvals", "application/json",
		strings.NewReader(`{"reviewer":"alice","comment":"lgtm"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	unblocked := decodeRun(t, resp)
	assert.Equal(t, types.RunDone, unblocked.Status)

	// The approval is listed afterwards.
	resp, err = http.Get(ts.URL + "/api/runs/" + run.RunID + "/approvals")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var approvals []types.Approval
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&approvals))
	require.Len(t, approvals, 1)
	assert.Equal(t, "alice", approvals[0].Reviewer)
}

func TestApprovalValidation(t *testing.T) {
	ts, _ := setupTestServer(t)

	// Missing reviewer.
	resp, err := http.Post(ts.URL+"/api/runs/some-run/approvals", "application/json",
		strings.NewReader(`{"comment":"lgtm"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown run.
	resp, err = http.Post(ts.URL+"/api/runs/missing/approvals", "application/json",
		strings.NewReader(`{"reviewer":"alice"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprovalOnTerminalRun(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"dev","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	run := decodeRun(t, resp)
	require.Equal(t, types.RunDone, run.Status)

	resp, err = http.Post(ts.URL+"/api/runs/"+run.RunID+"/approvals", "application/json",
		strings.NewReader(`{"reviewer":"alice"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResumeNonBlockedRun(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"dev","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	run := decodeRun(t, resp)

	resp, err = http.Post(ts.URL+"/api/runs/"+run.RunID+"/resume", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetRunNotFound(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/runs/does-not-exist")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRunsAndEnvironmentRuns(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"dev","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	_ = decodeRun(t, resp)

	resp, err = http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	var runs []types.RunContext
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	_ = resp.Body.Close()
	assert.Len(t, runs, 1)

	resp, err = http.Get(ts.URL + "/api/environments/dev/runs")
	require.NoError(t, err)
	runs = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	_ = resp.Body.Close()
	assert.Len(t, runs, 1)

	resp, err = http.Get(ts.URL + "/api/environments/moon/runs")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEnvironmentEvents(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"dev","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	_ = decodeRun(t, resp)

	resp, err = http.Get(ts.URL + "/api/environments/dev/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var events []types.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	assert.NotEmpty(t, events)
	// Newest first.
	assert.Equal(t, types.EventRunCompleted, events[0].Kind)
}

func TestAPIKeyMiddleware(t *testing.T) {
	ts, _ := setupTestServerWithOpts(t, "secret", 0)

	// Health stays open.
	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Everything else requires the key.
	resp, err = http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMaxBodyMiddleware(t *testing.T) {
	ts, _ := setupTestServerWithOpts(t, "", 16)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"type":"push","branch":"dev","commit":"abc1234","actor":"ci"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
