package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotFile is the snapshot's name inside the run directory.
const SnapshotFile = "pipeline_context.json"

// SaveSnapshot writes the context snapshot into the run directory.
// Identical contexts always produce identical bytes: encoding/json
// sorts map keys. A context with no run directory yet has nowhere to
// write and is skipped without error.
func SaveSnapshot(c *Context) (string, error) {
	if c.RunDir == "" {
		return "", nil
	}
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	path := filepath.Join(c.RunDir, SnapshotFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
