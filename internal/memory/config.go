package memory

import (
	"errors"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/gobbledegook/creevey/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit handed to the Go
// heap. libvips allocates outside it.
const DefaultMemoryRatio = 0.85

// LimitSource says where the memory limit came from.
type LimitSource string

const (
	SourceNone     LimitSource = "none"
	SourceGoEnv    LimitSource = "GOMEMLIMIT"
	SourceEnv      LimitSource = "MEMORY_LIMIT"
	SourceCgroupV2 LimitSource = "cgroup"
)

// cgroupMemoryMax is the cgroup v2 limit file. Tests point it elsewhere.
var cgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured     bool
	Source         LimitSource
	ContainerLimit int64 // bytes, 0 if unknown
	GoMemLimit     int64 // bytes, 0 if not set
	Ratio          float64
}

// ConfigureFromEnv sets the Go soft memory limit. Call it before the cache
// starts allocating.
//
// GOMEMLIMIT, if set, is left alone. Otherwise the container limit is taken
// from MEMORY_LIMIT (plain bytes or a size such as "512MiB") or, failing
// that, from the cgroup v2 memory.max file, and MEMORY_RATIO of it (default
// DefaultMemoryRatio) becomes the limit.
func ConfigureFromEnv() ConfigResult {
	if v := os.Getenv("GOMEMLIMIT"); v != "" {
		logging.Info("GOMEMLIMIT set via environment: %s", v)
		limit := debug.SetMemoryLimit(-1)
		if limit <= 0 || limit == math.MaxInt64 {
			return ConfigResult{Source: SourceNone}
		}
		return ConfigResult{Configured: true, Source: SourceGoEnv, GoMemLimit: limit}
	}

	limit, source := containerLimit()
	if limit == 0 {
		return ConfigResult{Source: SourceNone}
	}

	ratio := ratioFromEnv()
	goLimit := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(goLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s from %s)",
		humanize.IBytes(uint64(goLimit)), ratio*100, humanize.IBytes(uint64(limit)), source)

	return ConfigResult{
		Configured:     true,
		Source:         source,
		ContainerLimit: limit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}

// containerLimit returns the container memory limit in bytes, or 0.
func containerLimit() (int64, LimitSource) {
	if v := os.Getenv("MEMORY_LIMIT"); v != "" {
		n, err := parseBytes(v)
		if err != nil {
			logging.Warn("Failed to parse MEMORY_LIMIT %q: %v", v, err)
			return 0, SourceNone
		}
		return n, SourceEnv
	}

	data, err := os.ReadFile(cgroupMemoryMax)
	if err != nil {
		logging.Debug("No MEMORY_LIMIT and no cgroup limit, GOMEMLIMIT left unset")
		return 0, SourceNone
	}
	v := strings.TrimSpace(string(data))
	if v == "max" {
		return 0, SourceNone
	}
	n, err := parseBytes(v)
	if err != nil {
		logging.Warn("Ignoring cgroup memory.max %q: %v", v, err)
		return 0, SourceNone
	}
	return n, SourceCgroupV2
}

var errNotPositive = errors.New("must be positive")

// parseBytes accepts a plain byte count or a humanized size.
func parseBytes(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, errNotPositive
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, errNotPositive
	}
	return int64(n), nil
}

func ratioFromEnv() float64 {
	v := os.Getenv("MEMORY_RATIO")
	if v == "" {
		return DefaultMemoryRatio
	}
	r, err := strconv.ParseFloat(v, 64)
	if err != nil || r <= 0 || r > 1 {
		logging.Warn("Ignoring MEMORY_RATIO %q, using %.2f", v, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return r
}
