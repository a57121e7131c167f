// Command jpegtran rewrites JPEG files without recompressing them.
//
// Usage:
//
//	jpegtran [options] file...
//
// Geometric options (at most one):
//
//	-rotate 90|180|270      rotate clockwise
//	-flip horizontal|vertical
//	-transpose, -transverse mirror across a diagonal
//
// Other options:
//
//	-grayscale              drop the colour components
//	-optimize               write optimised Huffman tables
//	-progressive            write a progressive JPEG
//	-trim                   drop edge blocks that cannot be transformed
//	-copy none|comments|all markers to keep (default all)
//	-autorotate             apply the EXIF orientation and reset it
//	-reset-orientation      set the EXIF orientation to 1
//	-delete-thumb           remove the EXIF thumbnail
//	-replace-thumb file     replace the EXIF thumbnail
//	-preserve-mtime         keep the modification time
//	-outfile file           write elsewhere (single input only)
//	-v                      verbose logging
//
// Files are replaced atomically. Status lines are coloured when stdout is a
// terminal. The exit status is 1 if any file failed and 2 for usage errors.
package main
