package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/metrics"
	"github.com/gobbledegook/creevey/internal/workers"
)

// File is an image found by a walk.
type File struct {
	Path    string
	RelPath string
	Name    string
	Size    int64
	ModTime time.Time
	Format  media.Format
}

// Paths returns the absolute paths of files, in order.
func Paths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// maxScanWorkers caps the walk so a large machine does not flood an NFS
// server with stats. CREEVEY_SCAN_WORKERS still applies below it.
const maxScanWorkers = 16

// ParallelWalkerConfig configures the parallel directory walker
type ParallelWalkerConfig struct {
	// NumWorkers is the number of parallel workers (0 = auto based on CPU)
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Recursive descends into subdirectories; otherwise only the root's own
	// files are returned.
	Recursive bool
}

// DefaultParallelWalkerConfig returns sensible defaults based on available resources
func DefaultParallelWalkerConfig() ParallelWalkerConfig {
	return ParallelWalkerConfig{
		NumWorkers:    workers.For(workers.Scan, maxScanWorkers),
		ChannelBuffer: 1000,
		SkipHidden:    true,
		Recursive:     true,
	}
}

// fileJob represents a file to be processed
type fileJob struct {
	path    string
	relPath string
	info    fs.FileInfo
}

// fileResult represents a processed file
type fileResult struct {
	file *File
	err  error
}

// ParallelWalker walks directories in parallel
type ParallelWalker struct {
	config ParallelWalkerConfig
	root   string

	jobs    chan fileJob
	results chan fileResult
	wg      sync.WaitGroup

	filesFound   atomic.Int64
	filesSkipped atomic.Int64
	errorsCount  atomic.Int64
}

// NewParallelWalker creates a new parallel directory walker
func NewParallelWalker(root string, config ParallelWalkerConfig) *ParallelWalker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = workers.For(workers.Scan, maxScanWorkers)
	}
	if config.ChannelBuffer < 0 {
		config.ChannelBuffer = 0
	}
	return &ParallelWalker{
		config:  config,
		root:    filepath.Clean(root),
		jobs:    make(chan fileJob, config.ChannelBuffer),
		results: make(chan fileResult, config.ChannelBuffer),
	}
}

// Walk performs a parallel walk of the directory tree and returns the image
// files found, sorted by path. A walker can be used once. Cancelling ctx
// stops the walk and returns ctx's error with whatever was found so far.
func (pw *ParallelWalker) Walk(ctx context.Context) ([]File, error) {
	info, err := os.Stat(pw.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "walk", Path: pw.root, Err: syscall.ENOTDIR}
	}

	logging.Debug("Starting parallel directory walk of %s with %d workers", pw.root, pw.config.NumWorkers)
	startTime := time.Now()
	metrics.WalkRunsTotal.Inc()
	metrics.WalkParallelWorkers.Set(float64(pw.config.NumWorkers))

	for i := 0; i < pw.config.NumWorkers; i++ {
		pw.wg.Add(1)
		go pw.worker(ctx)
	}

	var files []File
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for result := range pw.results {
			if result.err != nil {
				pw.errorsCount.Add(1)
				metrics.WalkErrors.Inc()
				logging.Debug("Error processing file: %v", result.err)
				continue
			}
			if result.file != nil {
				files = append(files, *result.file)
			}
		}
	}()

	walkErr := pw.walkAndEnqueue(ctx)
	close(pw.jobs)
	pw.wg.Wait()
	close(pw.results)
	<-collected

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })

	duration := time.Since(startTime)
	metrics.WalkDuration.Observe(duration.Seconds())
	metrics.WalkFilesFound.Add(float64(len(files)))
	logging.Info("Walk of %s complete: %d images in %v (skipped: %d, errors: %d)",
		pw.root, len(files), duration, pw.filesSkipped.Load(), pw.errorsCount.Load())

	if walkErr != nil {
		return files, walkErr
	}
	return files, ctx.Err()
}

// walkAndEnqueue walks the directory tree and sends jobs to workers
func (pw *ParallelWalker) walkAndEnqueue(ctx context.Context) error {
	err := filepath.WalkDir(pw.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			pw.errorsCount.Add(1)
			metrics.WalkErrors.Inc()
			return nil
		}
		if path == pw.root {
			return nil
		}

		if pw.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !pw.config.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !media.IsImage(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			return nil
		}
		relPath, err := filepath.Rel(pw.root, path)
		if err != nil {
			//nolint:nilerr // skip this file but keep walking
			return nil
		}

		select {
		case pw.jobs <- fileJob{path: path, relPath: relPath, info: info}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
	return err
}

// worker processes files from the jobs channel
func (pw *ParallelWalker) worker(ctx context.Context) {
	defer pw.wg.Done()
	for job := range pw.jobs {
		if ctx.Err() != nil {
			continue
		}
		result := pw.processFile(job)
		if result.file != nil {
			pw.filesFound.Add(1)
		}
		pw.results <- result
	}
}

// processFile sniffs the file's contents so that misnamed files are not
// handed to the decoders.
func (pw *ParallelWalker) processFile(job fileJob) fileResult {
	format, err := media.DetectFormat(job.path)
	if err != nil {
		return fileResult{err: err}
	}
	if format == media.FormatUnknown {
		pw.filesSkipped.Add(1)
		logging.Debug("Skipping %s: not an image", job.path)
		return fileResult{}
	}
	return fileResult{file: &File{
		Path:    job.path,
		RelPath: job.relPath,
		Name:    job.info.Name(),
		Size:    job.info.Size(),
		ModTime: job.info.ModTime(),
		Format:  format,
	}}
}

// Stats returns current processing statistics
func (pw *ParallelWalker) Stats() (found, skipped, errors int64) {
	return pw.filesFound.Load(), pw.filesSkipped.Load(), pw.errorsCount.Load()
}
