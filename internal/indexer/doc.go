// Package indexer finds the image files under a directory.
//
// A [ParallelWalker] walks the tree on one goroutine and sniffs each
// candidate file's format on a pool of workers, which keeps slow network
// filesystems busy without flooding them. The result is sorted by path and
// is what the thumbnail cache is fed when a whole directory is cached:
//
//	w := indexer.NewParallelWalker(root, indexer.DefaultParallelWalkerConfig())
//	files, err := w.Walk(ctx)
//	if err != nil {
//	    return err
//	}
//	err = cache.CacheFiles(ctx, indexer.Paths(files))
//
// Hidden files and directories (names starting with '.') are skipped unless
// SkipHidden is turned off. Files whose extension looks like an image but
// whose contents do not are dropped.
package indexer
