package process

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// StagingFiles names the before/after-image pair for one invocation.
type StagingFiles struct {
	Before string
	After  string
}

// NewStagingRoot returns a directory the staging files can be written
// under. A configured root (e.g. a shared filesystem for the Slurm or
// Docker delegates) is used as-is and left untouched by cleanup; an
// unconfigured one gets a fresh temp directory that cleanup removes.
func NewStagingRoot(configured string) (root string, cleanup func(), error error) {
	if configured != "" {
		if err := os.MkdirAll(configured, 0o755); err != nil {
			return "", nil, fmt.Errorf("process: create staging root %s: %w", configured, err)
		}
		return configured, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "delegatefunc-staging-*")
	if err != nil {
		return "", nil, fmt.Errorf("process: create temp staging root: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// NewStagingFiles picks fresh, collision-free before/after-image paths
// under root.
func NewStagingFiles(root string) StagingFiles {
	id := uuid.NewString()
	return StagingFiles{
		Before: filepath.Join(root, fmt.Sprintf("delegate-%s-before.cbor", id)),
		After:  filepath.Join(root, fmt.Sprintf("delegate-%s-after.cbor", id)),
	}
}
