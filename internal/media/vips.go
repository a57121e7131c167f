package media

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gobbledegook/creevey/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// vipsLogLevel maps our log level to the most verbose vips level worth
// forwarding. vips is chattier than we are, so each level is one step
// quieter.
func vipsLogLevel(l logging.LogLevel) vips.LogLevel {
	switch l {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelWarn:
		return vips.LogLevelError
	case logging.LevelError:
		return vips.LogLevelCritical
	}
	return vips.LogLevelWarning
}

func forwardVipsLog(domain string, level vips.LogLevel, msg string) {
	switch {
	case level <= vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case level == vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// InitVips starts libvips. It must be called before any HEIF, AVIF or JPEG
// XL file is loaded; until then those formats fail to decode.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Logging has to be configured before Startup.
	vips.LoggingSettings(forwardVipsLog, vipsLogLevel(logging.GetLevel()))

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,                // the cache runs its own workers
		MaxCacheMem:      50 * 1024 * 1024, // 50MB cache
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// loadWithVips decodes path with libvips, shrinking during decode where the
// format allows it, and returns the result as a Go image.
func loadWithVips(path string, format Format, targetWidth, targetHeight int) (*Thumbnail, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}

	logging.Debug("Loading %s with vips (target: %dx%d)", filepath.Base(path), targetWidth, targetHeight)

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips autorotate failed: %w", err)
	}
	source := ImageDimensions{Width: ref.Width(), Height: ref.Height()}

	if targetWidth > 0 && targetHeight > 0 && (source.Width > targetWidth || source.Height > targetHeight) {
		if err := ref.Thumbnail(targetWidth, targetHeight, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	img, err := ref.ToImage(vips.NewDefaultExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	logging.Debug("Vips processing complete for %s: %dx%d -> %dx%d",
		filepath.Base(path), source.Width, source.Height, img.Bounds().Dx(), img.Bounds().Dy())

	return &Thumbnail{Image: img, Source: source, Format: format}, nil
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}
