// Package media loads images that are not JPEG files.
//
// JPEG thumbnails come from the scaled decoder in package epeg. Everything
// else is handled here:
//   - Format detection from the file's magic bytes
//   - PNG, GIF, BMP, TIFF and WebP through imaging and golang.org/x/image
//   - HEIF, AVIF and JPEG XL through libvips, when InitVips succeeded
//
// It also formats the file and pixel sizes shown next to thumbnails.
package media
