package file

import (
	"fmt"
	"os"
	"path/filepath"
)

const tmpPrefix = ".tmp-"

// WriteAtomic writes data to path so that readers see either the previous
// content or the new content, never a partial file.
// The temp file lives in the destination directory so the rename stays on one filesystem.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, tmpPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename %s -> %s: %w", tmpPath, path, err)
	}

	return syncDir(dir)
}

// syncDir persists the directory entry created by a rename.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil && !isUnsupportedSync(err) {
		return fmt.Errorf("failed to sync directory %s: %w", dir, err)
	}
	return nil
}
