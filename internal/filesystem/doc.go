/*
Package filesystem provides resilient file access for photo libraries that
live on network mounts, and atomic replacement of files that are edited in
place.

# Retry

StatWithRetry, OpenWithRetry and ReadFileWithRetry wrap the os calls with
retry logic for NFS stale file handle errors (ESTALE). Other errors are
returned at once. Backoff doubles from InitialBackoff up to MaxBackoff.

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
	if errors.Is(err, fs.ErrNotExist) {
	    // the photo was deleted
	}

# Atomic writes

WriteFileAtomic writes to a temporary file next to the destination, syncs it
and renames it into place. A failed write leaves the destination untouched.
The lossless JPEG transform uses it to rewrite photos:

	err := filesystem.WriteFileAtomic(path, out, filesystem.AtomicOptions{
	    ModTime: info.ModTime(), // keep the original date
	})

# Metrics

The package does not import the metrics package. Call SetObserver at startup
with metrics.NewFilesystemObserver() to record operation durations, retries
and stale handle errors, labelled by the volume that SetDefaultVolumeResolver
maps each path to.
*/
package filesystem
