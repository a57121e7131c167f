package startup

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gobbledegook/creevey/internal/logging"
)

var errNotPositive = errors.New("must be positive")

// setting is one environment variable as LoadConfig resolved it.
type setting struct {
	key      string
	value    string
	fallback bool
}

// settings reads configuration from the environment and remembers every
// lookup, so the whole configuration can be logged as one table.
type settings struct {
	seen []setting
}

// lookup reads key and parses it. An empty variable gives def; one that
// fails to parse gives def and a warning.
func lookup[T any](s *settings, key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		s.record(key, def, true)
		return def
	}
	v, err := parse(raw)
	if err != nil {
		logging.Warn("  Invalid %s %q (%v), using default: %v", key, raw, err, def)
		s.record(key, def, true)
		return def
	}
	s.record(key, v, false)
	return v
}

func (s *settings) record(key string, v any, fallback bool) {
	s.seen = append(s.seen, setting{key: key, value: fmt.Sprint(v), fallback: fallback})
}

func (s *settings) str(key, def string) string {
	return lookup(s, key, def, func(v string) (string, error) { return v, nil })
}

func (s *settings) boolean(key string, def bool) bool {
	return lookup(s, key, def, strconv.ParseBool)
}

func (s *settings) positive(key string, def int) int {
	return lookup(s, key, def, func(v string) (int, error) {
		n, err := strconv.Atoi(v)
		if err == nil && n <= 0 {
			err = errNotPositive
		}
		return n, err
	})
}

func (s *settings) duration(key string, def time.Duration) time.Duration {
	return lookup(s, key, def, func(v string) (time.Duration, error) {
		d, err := time.ParseDuration(v)
		if err == nil && d <= 0 {
			err = errNotPositive
		}
		return d, err
	})
}

func (s *settings) log() {
	for _, st := range s.seen {
		suffix := ""
		if st.fallback {
			suffix = " (default)"
		}
		logging.Info("  %-20s %s%s", st.key+":", st.value, suffix)
	}
	logging.Info("  %-20s %s", "LOG_LEVEL:", logging.GetLevel())
}
