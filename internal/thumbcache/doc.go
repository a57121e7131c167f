// Package thumbcache keeps decoded, size-bounded previews of image files in
// memory.
//
// A path is in one of four states: absent, pending (a decode job is queued
// or running), cached and valid, or cached and stale. Stale entries are
// still served while a fresh decode runs in the background. An entry goes
// stale when the bounding box changes or when its file is reported modified.
//
// Decodes run on a fixed worker pool and never on the caller's goroutine.
// Request and the polling lookups never block; Get waits for the decode or
// for its context. Concurrent requests for the same path share one job.
//
// The cache holds at most MaxImages entries and evicts the least recently
// used ones first. Entries that are pending or retained through BeginAccess
// are never evicted.
//
// Abort stops bulk caching: queued jobs are dropped, running decodes are
// cancelled, and their results are thrown away. Resume reopens the cache.
//
// Callers that produce thumbnails themselves use AttemptLock, then AddImage
// or DontAdd. They get the same one-producer-per-path guarantee as jobs.
package thumbcache
