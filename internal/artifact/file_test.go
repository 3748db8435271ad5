package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key, err := fs.Put(ctx, types.EnvDev, "run-1", []byte("plan-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "dev/run-1/tfplan", key)

	data, err := fs.Get(ctx, types.EnvDev, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("plan-bytes"), data)

	// Environments are isolated: same run id, different environment.
	_, err = fs.Get(ctx, types.EnvStaging, "run-1")
	assert.Error(t, err)

	require.NoError(t, fs.Delete(ctx, types.EnvDev, "run-1"))
	_, err = fs.Get(ctx, types.EnvDev, "run-1")
	assert.Error(t, err)

	// Deleting a missing artifact is not an error.
	assert.NoError(t, fs.Delete(ctx, types.EnvDev, "run-1"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "plans/prod/r1/tfplan", objectKey("plans", types.EnvProd, "r1"))
	assert.Equal(t, "prod/r1/tfplan", objectKey("", types.EnvProd, "r1"))
}

func TestRetentionFloor(t *testing.T) {
	assert.Equal(t, MinRetention, Retention(nil))
	assert.Equal(t, MinRetention, Retention(&types.ArtifactConfig{Retention: "1h"}))
	assert.Equal(t, MinRetention, Retention(&types.ArtifactConfig{Retention: "bogus"}))
	assert.Equal(t, 72*time.Hour, Retention(&types.ArtifactConfig{Retention: "72h"}))
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(&types.ArtifactConfig{Type: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(&types.ArtifactConfig{Type: "gcs"})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}
