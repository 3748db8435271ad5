package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// FileStore keeps plan artifacts under a local directory. Suitable for
// single-runner setups and local development.
type FileStore struct {
	dir string
}

// NewFileStore creates a filesystem-backed artifact store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(env types.Environment, runID string) string {
	return filepath.Join(f.dir, objectKey("", env, runID))
}

// Put writes a plan artifact and returns its store-relative key.
func (f *FileStore) Put(_ context.Context, env types.Environment, runID string, plan []byte) (string, error) {
	p := f.path(env, runID)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(p, plan, 0o600); err != nil {
		return "", fmt.Errorf("writing plan artifact: %w", err)
	}
	return objectKey("", env, runID), nil
}

// Get reads the plan artifact for a run.
func (f *FileStore) Get(_ context.Context, env types.Environment, runID string) ([]byte, error) {
	data, err := os.ReadFile(f.path(env, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plan artifact for run %s (%s): not found", runID, env)
		}
		return nil, fmt.Errorf("reading plan artifact: %w", err)
	}
	return data, nil
}

// Delete removes the plan artifact for a run.
func (f *FileStore) Delete(_ context.Context, env types.Environment, runID string) error {
	err := os.Remove(f.path(env, runID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
