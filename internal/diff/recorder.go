package diff

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Recorder writes one diff artifact per applied patch, under
// <root>/cycle_<n>/<touch>_<file>.diff.
type Recorder struct {
	engine *Engine
	root   string
	logger *zap.Logger
}

// NewRecorder creates a recorder writing below root (normally
// <log_dir>/<run_id>).
func NewRecorder(root string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		engine: NewEngine(),
		root:   root,
		logger: logger,
	}
}

// Root returns the directory artifacts are written under.
func (r *Recorder) Root() string {
	return r.root
}

// ArtifactPath derives the artifact location for a touch of fileName (a base
// name) in the given cycle.
func (r *Recorder) ArtifactPath(cycle, touch int, fileName string) string {
	return filepath.Join(r.root,
		fmt.Sprintf("cycle_%d", cycle),
		fmt.Sprintf("%d_%s.diff", touch, fileName))
}

// Record writes the unified diff of oldText -> newText to artifactPath,
// creating parent directories as needed. The file is overwritten if present.
func (r *Recorder) Record(oldText, newText, artifactPath string) error {
	hunks := r.engine.ComputeHunks(oldText, newText)
	text := Render(hunks)

	if err := os.MkdirAll(filepath.Dir(artifactPath), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(artifactPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write diff artifact: %w", err)
	}

	added, removed := Stats(hunks)
	r.logger.Debug("diff recorded",
		zap.String("artifact", artifactPath),
		zap.Int("hunks", len(hunks)),
		zap.Int("added", added),
		zap.Int("removed", removed))
	return nil
}
