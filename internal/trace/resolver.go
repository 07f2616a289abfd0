// Package trace turns the text of a failed execution into the set of source
// files the failure implicates.
package trace

import (
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

// DefaultExtension is the source extension recognized when none is configured.
const DefaultExtension = ".py"

// Extractor maps failure text to candidate files: absolute, canonical paths
// of existing regular files, without duplicates, in first-appearance order.
type Extractor interface {
	Files(text string) []string
}

// PatternExtractor recognizes interpreter stack frames of the form
//
//	File "<path><ext>", line N
//
// and resolves each path against BaseDir.
type PatternExtractor struct {
	baseDir string
	pattern *regexp.Regexp
	logger  *zap.Logger
}

// Verify PatternExtractor implements Extractor
var _ Extractor = (*PatternExtractor)(nil)

// NewPatternExtractor builds an extractor for frames ending in ext. An empty
// baseDir means the process working directory at resolution time; an empty
// ext means DefaultExtension.
func NewPatternExtractor(baseDir, ext string, logger *zap.Logger) *PatternExtractor {
	if ext == "" {
		ext = DefaultExtension
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternExtractor{
		baseDir: baseDir,
		pattern: regexp.MustCompile(`File "(.+?` + regexp.QuoteMeta(ext) + `)", line`),
		logger:  logger,
	}
}

// Files returns the CandidateFileSet for text. Paths that don't resolve to an
// existing regular file are dropped silently (site-packages frames from a
// different machine, "<string>" pseudo files, deleted temp files).
func (e *PatternExtractor) Files(text string) []string {
	matches := e.pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var files []string
	for _, m := range matches {
		resolved, ok := e.resolve(m[1])
		if !ok || seen[resolved] {
			continue
		}
		seen[resolved] = true
		files = append(files, resolved)
	}

	e.logger.Debug("resolved trace frames",
		zap.Int("frames", len(matches)),
		zap.Int("candidates", len(files)))
	return files
}

func (e *PatternExtractor) resolve(raw string) (string, bool) {
	path := raw
	if !filepath.IsAbs(path) {
		base := e.baseDir
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", false
			}
			base = wd
		}
		path = filepath.Join(base, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Missing file or dangling link
		return "", false
	}

	info, err := os.Stat(canonical)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return canonical, true
}
