package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobbledegook/creevey/internal/logging"
)

// AtomicOptions controls WriteFileAtomic.
type AtomicOptions struct {
	// Perm is used when the destination does not exist yet. An existing
	// destination keeps its mode.
	Perm os.FileMode
	// ModTime, when non-zero, is applied to the destination after the
	// rename.
	ModTime time.Time
}

// WriteFileAtomic replaces path with data. The data is written to a
// temporary file in the same directory, synced, then renamed over path, so
// readers see either the old or the new content. On failure the temporary
// file is removed and path is untouched.
func WriteFileAtomic(path string, data []byte, opts AtomicOptions) (err error) {
	start := time.Now()
	defer func() {
		if obs := observe(); obs != nil {
			obs.ObserveOperation(defaultResolver.Resolve(path), "write", time.Since(start).Seconds(), err)
		}
	}()

	perm := opts.Perm
	if perm == 0 {
		perm = 0o644
	}
	if info, statErr := os.Stat(path); statErr == nil {
		perm = info.Mode().Perm()
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrIO, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.Warn("failed to remove temp file %s: %v", tmpName, rmErr)
			}
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrIO, tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrIO, tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, tmpName, err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrIO, tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename to %s: %w", ErrIO, path, err)
	}

	if !opts.ModTime.IsZero() {
		if chErr := os.Chtimes(path, opts.ModTime, opts.ModTime); chErr != nil {
			logging.Warn("failed to restore modification time of %s: %v", path, chErr)
		}
	}

	if d, dirErr := os.Open(dir); dirErr == nil {
		if syncErr := d.Sync(); syncErr != nil {
			logging.Debug("directory sync of %s failed: %v", dir, syncErr)
		}
		if closeErr := d.Close(); closeErr != nil {
			logging.Warn("failed to close directory %s: %v", dir, closeErr)
		}
	}
	return nil
}
