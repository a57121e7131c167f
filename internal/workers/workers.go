package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Kind classifies work for sizing a pool.
type Kind int

const (
	// Decode is CPU-bound: JPEG decoding, scaling and encoding.
	Decode Kind = iota
	// Scan is I/O-bound: directory walks and stat calls, which spend most of
	// their time waiting on the filesystem.
	Scan
)

func (k Kind) String() string {
	if k == Scan {
		return "scan"
	}
	return "decode"
}

// perCPU is how many workers each kind gets per usable CPU.
func (k Kind) perCPU() int {
	if k == Scan {
		return 2
	}
	return 1
}

// envVar names the per-kind override; CREEVEY_WORKERS applies to both.
func (k Kind) envVar() string {
	if k == Scan {
		return "CREEVEY_SCAN_WORKERS"
	}
	return "CREEVEY_DECODE_WORKERS"
}

// For returns the number of workers for k, never more than limit (0 means no
// limit) and never fewer than one. GOMAXPROCS already reflects container CPU
// quotas. A positive integer in the kind's environment variable, or failing
// that CREEVEY_WORKERS, replaces the computed count.
func For(k Kind, limit int) int {
	n := fromEnv(k.envVar())
	if n == 0 {
		n = fromEnv("CREEVEY_WORKERS")
	}
	if n == 0 {
		n = runtime.GOMAXPROCS(0) * k.perCPU()
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return max(n, 1)
}

func fromEnv(name string) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil || v < 1 {
		return 0
	}
	return v
}
