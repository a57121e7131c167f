package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/jpegtran"
	"github.com/gobbledegook/creevey/internal/logging"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorReset  = "\033[0m"
)

var errUsage = errors.New("usage")

func main() {
	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
		cancel()
	}()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// options is the parsed command line.
type options struct {
	spec    jpegtran.Spec
	outfile string
	verbose bool
	files   []string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("jpegtran", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr, fs) }

	var (
		rotate, flip, copyPolicy, replaceThumb string
		transpose, transverse                  bool
		opts                                   options
	)
	fs.StringVar(&rotate, "rotate", "", "rotate clockwise by `degrees` (90, 180 or 270)")
	fs.StringVar(&flip, "flip", "", "mirror `direction` (horizontal or vertical)")
	fs.BoolVar(&transpose, "transpose", false, "mirror across the top-left to bottom-right diagonal")
	fs.BoolVar(&transverse, "transverse", false, "mirror across the top-right to bottom-left diagonal")
	fs.BoolVar(&opts.spec.Grayscale, "grayscale", false, "drop the colour components")
	fs.BoolVar(&opts.spec.Optimize, "optimize", false, "write optimised Huffman tables")
	fs.BoolVar(&opts.spec.Progressive, "progressive", false, "write a progressive JPEG")
	fs.BoolVar(&opts.spec.Trim, "trim", false, "drop partial edge blocks that cannot be transformed")
	fs.StringVar(&copyPolicy, "copy", "all", "markers to keep: `none`, comments or all")
	fs.BoolVar(&opts.spec.AutoRotate, "autorotate", false, "rotate to match the EXIF orientation, then reset it")
	fs.BoolVar(&opts.spec.ResetOrientation, "reset-orientation", false, "set the EXIF orientation to 1 without rotating")
	fs.BoolVar(&opts.spec.DeleteThumb, "delete-thumb", false, "remove the EXIF thumbnail")
	fs.StringVar(&replaceThumb, "replace-thumb", "", "replace the EXIF thumbnail with the JPEG in `file`")
	fs.BoolVar(&opts.spec.PreserveModTime, "preserve-mtime", false, "keep the file's modification time")
	fs.StringVar(&opts.outfile, "outfile", "", "write to `file` instead of rewriting the input in place")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	opts.files = fs.Args()

	var ops []jpegtran.Op
	if rotate != "" {
		op, err := jpegtran.ParseOp(rotate)
		if err != nil || (op != jpegtran.Rot90 && op != jpegtran.Rot180 && op != jpegtran.Rot270) {
			return nil, fmt.Errorf("invalid -rotate %q: want 90, 180 or 270", rotate)
		}
		ops = append(ops, op)
	}
	if flip != "" {
		op, err := jpegtran.ParseOp(flip)
		if err != nil || (op != jpegtran.FlipH && op != jpegtran.FlipV) {
			return nil, fmt.Errorf("invalid -flip %q: want horizontal or vertical", flip)
		}
		ops = append(ops, op)
	}
	if transpose {
		ops = append(ops, jpegtran.Transpose)
	}
	if transverse {
		ops = append(ops, jpegtran.Transverse)
	}
	if len(ops) > 1 {
		return nil, errors.New("only one of -rotate, -flip, -transpose and -transverse may be given")
	}
	if len(ops) == 1 {
		opts.spec.Transform = ops[0]
	}

	policy, err := jpegtran.ParseCopyPolicy(copyPolicy)
	if err != nil {
		return nil, err
	}
	opts.spec.Copy = policy

	if replaceThumb != "" {
		if opts.spec.DeleteThumb {
			return nil, errors.New("-replace-thumb and -delete-thumb are mutually exclusive")
		}
		data, err := filesystem.ReadFileWithRetry(replaceThumb, filesystem.DefaultRetryConfig())
		if err != nil {
			return nil, fmt.Errorf("reading replacement thumbnail: %w", err)
		}
		opts.spec.ReplaceThumb = data
	}

	if len(opts.files) == 0 {
		return nil, errors.New("no input files")
	}
	if opts.outfile != "" && len(opts.files) != 1 {
		return nil, errors.New("-outfile needs exactly one input file")
	}
	return &opts, nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Lossless JPEG transformation")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: jpegtran [options] file...")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Files are rewritten in place unless -outfile is given. The original is")
	fmt.Fprintln(w, "left untouched if anything fails.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fs.PrintDefaults()
}

// printer writes status lines, coloured when the output is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	f, ok := w.(*os.File)
	return &printer{w: w, color: ok && term.IsTerminal(int(f.Fd()))}
}

func (p *printer) status(color, label, format string, args ...interface{}) {
	if p.color {
		label = color + label + colorReset
	}
	fmt.Fprintf(p.w, "%-9s %s\n", label, fmt.Sprintf(format, args...))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if opts.verbose {
		logging.SetLevel(logging.LevelDebug)
	} else {
		logging.SetLevel(logging.LevelWarn)
	}

	out := newPrinter(stdout)
	errOut := newPrinter(stderr)

	failed := 0
	for _, path := range opts.files {
		if ctx.Err() != nil {
			errOut.status(colorRed, "stopped", "%s", path)
			failed++
			continue
		}
		modified, err := transformFile(ctx, path, opts)
		switch {
		case err != nil:
			errOut.status(colorRed, "failed", "%s: %v", path, err)
			failed++
		case modified:
			out.status(colorGreen, "ok", "%s", path)
		default:
			out.status(colorYellow, "unchanged", "%s", path)
		}
	}

	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

// transformFile applies the spec to path, in place or into opts.outfile.
func transformFile(ctx context.Context, path string, opts *options) (bool, error) {
	if opts.outfile == "" {
		return jpegtran.Transform(ctx, path, opts.spec)
	}

	retry := filesystem.DefaultRetryConfig()
	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		return false, err
	}
	data, err := filesystem.ReadFileWithRetry(path, retry)
	if err != nil {
		return false, err
	}
	out, modified, err := jpegtran.TransformBytes(ctx, data, opts.spec)
	if err != nil {
		return false, err
	}
	atomic := filesystem.AtomicOptions{Perm: info.Mode().Perm()}
	if opts.spec.PreserveModTime {
		atomic.ModTime = info.ModTime()
	}
	if err := filesystem.WriteFileAtomic(opts.outfile, out, atomic); err != nil {
		return false, err
	}
	return modified, nil
}
