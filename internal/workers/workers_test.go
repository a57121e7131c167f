package workers

import (
	"runtime"
	"testing"
)

func clearWorkerEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"CREEVEY_WORKERS", "CREEVEY_DECODE_WORKERS", "CREEVEY_SCAN_WORKERS"} {
		t.Setenv(name, "")
	}
}

func TestForDefaults(t *testing.T) {
	clearWorkerEnv(t)
	cpus := runtime.GOMAXPROCS(0)

	if got := For(Decode, 0); got != cpus {
		t.Errorf("For(Decode, 0) = %d, want %d", got, cpus)
	}
	if got := For(Scan, 0); got != 2*cpus {
		t.Errorf("For(Scan, 0) = %d, want %d", got, 2*cpus)
	}
	if got := For(Scan, 1); got != 1 {
		t.Errorf("For(Scan, 1) = %d, want 1", got)
	}
}

func TestForOverrides(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		kind   Kind
		limit  int
		expect int
	}{
		{"global override", map[string]string{"CREEVEY_WORKERS": "8"}, Decode, 0, 8},
		{"global override capped", map[string]string{"CREEVEY_WORKERS": "20"}, Scan, 10, 10},
		{"kind override wins", map[string]string{"CREEVEY_WORKERS": "8", "CREEVEY_SCAN_WORKERS": "3"}, Scan, 0, 3},
		{"other kind untouched", map[string]string{"CREEVEY_WORKERS": "8", "CREEVEY_SCAN_WORKERS": "3"}, Decode, 0, 8},
		{"bad kind value falls back", map[string]string{"CREEVEY_WORKERS": "5", "CREEVEY_DECODE_WORKERS": "lots"}, Decode, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearWorkerEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := For(tt.kind, tt.limit); got != tt.expect {
				t.Errorf("For(%s, %d) = %d, want %d", tt.kind, tt.limit, got, tt.expect)
			}
		})
	}
}

func TestForIgnoresInvalidOverride(t *testing.T) {
	for _, v := range []string{"invalid", "0", "-5"} {
		t.Run(v, func(t *testing.T) {
			clearWorkerEnv(t)
			t.Setenv("CREEVEY_WORKERS", v)
			if got, want := For(Decode, 0), runtime.GOMAXPROCS(0); got != want {
				t.Errorf("For(Decode, 0) with CREEVEY_WORKERS=%q = %d, want %d", v, got, want)
			}
		})
	}
}
