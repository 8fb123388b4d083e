package cachelayout

import (
	"fmt"
	"os"
	"path/filepath"
)

// StagingDir is a scoped, per-operation directory for in-flight downloads.
// It is acquired on creation and must be released via Promote or Discard on
// every exit path, including cancellation — Design Note "Scoped downloads"
// (spec §9).
type StagingDir struct {
	root string
}

// Stage creates a fresh staging directory for one operation
// ("<staging>/<authority>/<account>/<repo>/<branch>/<opID>/").
func (l *Layout) Stage(opID string) (*StagingDir, error) {
	root := filepath.Join(l.StagingDir, l.repoSubpath(), opID)

	if err := os.MkdirAll(root, dirPermissions); err != nil {
		return nil, fmt.Errorf("cachelayout: creating staging dir %s: %w", root, err)
	}

	return &StagingDir{root: root}, nil
}

// Path returns the staging location for a repo-relative path, creating any
// intermediate directories needed to write to it.
func (s *StagingDir) Path(relPath string) (string, error) {
	p := filepath.Join(s.root, relPath)

	if err := os.MkdirAll(filepath.Dir(p), dirPermissions); err != nil {
		return "", fmt.Errorf("cachelayout: creating staging subdir for %s: %w", relPath, err)
	}

	return p, nil
}

// Promote atomically renames a fully-written, verified staged file into its
// final tier location. The destination's parent directories are created
// first. A concurrent reader must never observe a partial file (spec §4.2) —
// os.Rename is atomic within one filesystem, and staging always shares a
// filesystem with its tier directories by construction.
func (s *StagingDir) Promote(stagedPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), dirPermissions); err != nil {
		return fmt.Errorf("cachelayout: creating destination dir for %s: %w", destPath, err)
	}

	if err := os.Rename(stagedPath, destPath); err != nil {
		return fmt.Errorf("cachelayout: promoting %s to %s: %w", stagedPath, destPath, err)
	}

	return nil
}

// Discard removes the entire staging subtree, abandoning any partial writes.
func (s *StagingDir) Discard() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("cachelayout: discarding staging dir %s: %w", s.root, err)
	}

	return nil
}
