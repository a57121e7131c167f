// Package handlers provides the HTTP API of the thumbnail server.
//
// Every file is addressed by a "path" query parameter relative to the
// configured root; paths that escape the root are rejected. The handlers
// cover:
//   - thumbnails, served as JPEG with an ETag derived from the file's
//     identity and the cache generation
//   - file information, including the EXIF tag listing
//   - lossless JPEG transforms, which refresh the cached thumbnail
//   - bulk caching of a directory, with abort and resume
//   - the bounding box used for new thumbnails
//   - health, readiness, version and Prometheus metrics
package handlers
