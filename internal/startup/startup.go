package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/gobbledegook/creevey/internal/epeg"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/memory"
	"github.com/gobbledegook/creevey/internal/thumbcache"
	"github.com/gobbledegook/creevey/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Root            string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	CacheMaxImages int
	CacheBox       epeg.Size
	Interpolation  media.Interpolation
	PreferEmbedded bool
	QueueSize      int

	WatchEnabled bool
	WatchDelay   time.Duration
	VipsEnabled  bool
}

// CacheConfig returns the thumbnail cache settings. mem may be nil.
func (c *Config) CacheConfig(mem *memory.Monitor) thumbcache.Config {
	return thumbcache.Config{
		MaxImages:      c.CacheMaxImages,
		Box:            c.CacheBox,
		Interpolation:  c.Interpolation,
		PreferEmbedded: c.PreferEmbedded,
		QueueSize:      c.QueueSize,
		Memory:         mem,
	}
}

// LoadConfig reads the configuration from the environment. Unparseable
// values fall back to their defaults with a warning; a missing or unusable
// picture root is an error.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	env := &settings{}
	cfg := &Config{
		Root:            env.str("CREEVEY_ROOT", "/pictures"),
		Port:            env.str("PORT", "8080"),
		MetricsPort:     env.str("METRICS_PORT", "9090"),
		MetricsEnabled:  env.boolean("METRICS_ENABLED", true),
		CacheMaxImages:  env.positive("CACHE_MAX_IMAGES", thumbcache.DefaultMaxImages),
		QueueSize:       env.positive("CACHE_QUEUE_SIZE", thumbcache.DefaultQueueSize),
		CacheBox:        lookup(env, "CACHE_BOX", thumbcache.DefaultBox, parseBox),
		Interpolation:   lookup(env, "CACHE_INTERPOLATION", media.Linear, media.ParseInterpolation),
		PreferEmbedded:  env.boolean("THUMB_PREFER_EXIF", false),
		WatchEnabled:    env.boolean("WATCH_ENABLED", true),
		WatchDelay:      env.duration("WATCH_DELAY", 250*time.Millisecond),
		VipsEnabled:     env.boolean("VIPS_ENABLED", true),
		LogStaticFiles:  env.boolean("LOG_STATIC_FILES", false),
		LogHealthChecks: env.boolean("LOG_HEALTH_CHECKS", true),
	}
	env.log()

	section("DIRECTORY SETUP")
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory path: %w", err)
	}
	cfg.Root = root
	logging.Info("  Root directory (absolute): %s", root)
	if err := checkRoot(root); err != nil {
		return nil, fmt.Errorf("root directory error: %w", err)
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Watcher:     %s", enabledString(cfg.WatchEnabled))
	logging.Info("    libvips:     %s", enabledString(cfg.VipsEnabled))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func parseBox(s string) (epeg.Size, error) {
	box, err := epeg.ParseSize(s)
	if err == nil && box.Empty() {
		err = errNotPositive
	}
	return box, err
}

// section starts a titled block of startup log output.
func section(title string) {
	logging.Info("")
	logging.Info("%s", rule)
	logging.Info("%s", title)
	logging.Info("%s", rule)
}

const rule = "------------------------------------------------------------"

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs how the Go memory limit was configured
func LogMemoryConfig(result memory.ConfigResult) {
	section("MEMORY CONFIGURATION")

	if !result.Configured {
		logging.Info("  No memory limit configured (set MEMORY_LIMIT or GOMEMLIMIT)")
		return
	}
	logging.Info("  Source:          %s", result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Container limit: %s", formatBytes(result.ContainerLimit))
		logging.Info("  Heap ratio:      %.0f%%", result.Ratio*100)
	}
	logging.Info("  GOMEMLIMIT:      %s", formatBytes(result.GoMemLimit))
}

// LogCacheInit logs the thumbnail cache configuration
func LogCacheInit(cfg thumbcache.Config) {
	section("THUMBNAIL CACHE INITIALIZATION")
	logging.Info("  Capacity:        %d images", cfg.MaxImages)
	logging.Info("  Bounding box:    %s", cfg.Box)
	logging.Info("  Interpolation:   %s", cfg.Interpolation)
	n := cfg.Workers
	if n <= 0 {
		n = workers.For(workers.Decode, 0)
	}
	logging.Info("  Decode workers:  %d", n)
	logging.Info("  Queue size:      %d", cfg.QueueSize)
	if cfg.PreferEmbedded {
		logging.Info("  Embedded EXIF thumbnails are used when large enough")
	}
}

// LogVipsInit logs libvips availability
func LogVipsInit(enabled bool, err error) {
	switch {
	case !enabled:
		logging.Info("  libvips disabled; HEIF, AVIF and JPEG XL files will show placeholders")
	case err != nil:
		logging.Warn("  libvips unavailable: %v", err)
		logging.Warn("  HEIF, AVIF and JPEG XL files will show placeholders")
	default:
		logging.Info("  [OK] libvips is available")
	}
}

// LogWatcherInit logs file watcher initialization
func LogWatcherInit(root string, err error) {
	section("WATCHER INITIALIZATION")
	if err != nil {
		logging.Warn("  Failed to watch %s: %v", root, err)
		logging.Warn("  Changed files will not be refreshed until requested again")
		return
	}
	logging.Info("  [OK] Watching %s", root)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		logRouteTable(router)
	}

	logging.Info("  HTTP logging enabled")
	logging.Info("    Static file logging:  %s", onOff(logStaticFiles, "LOG_STATIC_FILES"))
	logging.Info("    Health check logging: %s", onOff(logHealthChecks, "LOG_HEALTH_CHECKS"))
}

func onOff(on bool, key string) string {
	if on {
		return "ON"
	}
	return "OFF (set " + key + "=true to enable)"
}

// logRouteTable prints the registered routes grouped by their first path
// segment ("api/cache", "health").
func logRouteTable(router *mux.Router) {
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return getRouteGroup(routes[i].Path) < getRouteGroup(routes[j].Path)
	})

	logging.Debug("  Registered routes (%d total):", len(routes))
	group := "\x00"
	for _, r := range routes {
		if g := getRouteGroup(r.Path); g != group {
			group = g
			if g == "" {
				g = "root"
			}
			logging.Debug("  [%s]", g)
		}
		logging.Debug("    %-6s %s", r.Method, r.Path)
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("%s", rule)
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   ______
  / ____/_______  ___ _   _____  __  __
 / /   / ___/ _ \/ _ \ | / / _ \/ / / /
/ /___/ /  /  __/  __/ |/ /  __/ /_/ /
\____/_/   \___/\___/|___/\___/\__, /
                              /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

// checkRoot verifies the picture root exists. Unlike a cache directory it
// is never created: a missing mount should fail loudly.
func checkRoot(path string) error {
	logging.Debug("  Checking root directory: %s", path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	logging.Debug("    [OK] Directory exists")

	if logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			images, dirs := 0, 0
			for _, e := range entries {
				switch {
				case e.IsDir():
					dirs++
				case media.IsImage(e.Name()):
					images++
				}
			}
			logging.Debug("    Contents: %d images, %d directories (top level)", images, dirs)
		}
	}
	return nil
}

func formatBytes(n int64) string {
	if n < 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(n))
}
