// Package filesystem provides file access with retry logic for network mounts
// and atomic file replacement.
package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gobbledegook/creevey/internal/logging"
)

// ErrIO wraps every I/O failure returned by this package.
var ErrIO = errors.New("filesystem: I/O failure")

// VolumeResolver maps file paths to volume labels for metrics, using
// longest-prefix matching on absolute paths.
type VolumeResolver struct {
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute, with trailing slash
	name string
}

// NewVolumeResolver creates a resolver from a map of volume name to path,
// e.g. {"photos": "/srv/photos"}.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if !strings.HasSuffix(abs, "/") {
			abs += "/"
		}
		mounts = append(mounts, volumeMount{path: abs, name: name})
	}
	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})
	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume label for path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	for _, m := range vr.mounts {
		if strings.HasPrefix(abs+"/", m.path) {
			return m.name
		}
	}
	return "unknown"
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver sets the package-level volume resolver.
// Call this once at startup after loading configuration.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver for this operation.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isStale reports whether err is an NFS stale file handle.
func isStale(err error) bool {
	return errors.Is(err, syscall.ESTALE)
}

// withRetry runs fn until it succeeds, fails with something other than
// ESTALE, or has been retried MaxRetries times. The backoff doubles after
// each stale handle, up to MaxBackoff.
func withRetry(op, path string, config RetryConfig, fn func() error) error {
	start := time.Now()
	volume := config.resolveVolume(path)
	obs := observe()
	emit := func(e RetryEvent) {
		if obs != nil {
			obs.ObserveRetry(op, volume, e)
		}
	}

	err := fn()
	backoff := config.InitialBackoff
	for retry := 1; isStale(err); retry++ {
		emit(RetryStale)
		if retry > config.MaxRetries {
			logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
			emit(RetryExhausted)
			break
		}
		emit(RetryAttempt)
		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, retry, config.MaxRetries)
		time.Sleep(backoff)
		backoff = min(backoff*2, config.MaxBackoff)

		if err = fn(); err == nil {
			logging.Info("NFS %s succeeded on retry %d for %s", op, retry, path)
			emit(RetrySucceeded)
		}
	}

	if obs != nil {
		d := time.Since(start).Seconds()
		obs.ObserveRetryDuration(op, volume, d)
		obs.ObserveOperation(volume, op, d, err)
	}
	return err
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var f *os.File
	err := withRetry("open", path, config, func() error {
		var err error
		f, err = os.Open(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ReadFileWithRetry reads a whole file, retrying on stale handles. Errors
// wrap ErrIO as well as the underlying os error, so both errors.Is(err,
// ErrIO) and errors.Is(err, fs.ErrNotExist) work.
func ReadFileWithRetry(path string, config RetryConfig) ([]byte, error) {
	var data []byte
	err := withRetry("read", path, config, func() error {
		var err error
		data, err = os.ReadFile(path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}
