// Package patch applies one proposed transformation to one file and records
// the change as a diff artifact.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mender/internal/diff"
	"mender/internal/transform"
)

// ErrIO marks local read, write and artifact failures. These are
// infrastructure errors, unlike collaborator failures.
var ErrIO = errors.New("patch i/o failure")

// Applier reads a file, asks the transformer for a replacement, and writes
// the replacement back when it differs.
type Applier struct {
	transformer transform.Transformer
	recorder    *diff.Recorder
	logger      *zap.Logger
}

// NewApplier creates an Applier that records artifacts through recorder.
func NewApplier(transformer transform.Transformer, recorder *diff.Recorder, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		transformer: transformer,
		recorder:    recorder,
		logger:      logger,
	}
}

// Apply attempts one patch of path. It returns true only when the file
// content was replaced and its artifact written for (cycle, touch).
func (a *Applier) Apply(ctx context.Context, path, trace string, cycle, touch int) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	current := string(data)

	proposed, err := a.transformer.Transform(ctx, current, trace)
	if err != nil {
		return false, fmt.Errorf("transform %s: %w", filepath.Base(path), err)
	}
	if proposed == "" || proposed == current {
		a.logger.Debug("no change proposed", zap.String("file", path))
		return false, nil
	}

	artifact := a.recorder.ArtifactPath(cycle, touch, filepath.Base(path))
	if err := a.recorder.Record(current, proposed, artifact); err != nil {
		return false, fmt.Errorf("%w: record diff for %s: %w", ErrIO, path, err)
	}

	if err := os.WriteFile(path, []byte(proposed), info.Mode().Perm()); err != nil {
		// The artifact exists only for applied touches
		if rmErr := os.Remove(artifact); rmErr != nil && !os.IsNotExist(rmErr) {
			a.logger.Warn("failed to remove orphaned artifact", zap.String("artifact", artifact), zap.Error(rmErr))
		}
		return false, fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}

	a.logger.Info("patched file",
		zap.String("file", path),
		zap.Int("cycle", cycle),
		zap.Int("touch", touch),
		zap.String("artifact", artifact))
	return true, nil
}

// ArtifactPath exposes where Apply records the diff for (cycle, touch, path).
func (a *Applier) ArtifactPath(cycle, touch int, path string) string {
	return a.recorder.ArtifactPath(cycle, touch, filepath.Base(path))
}
