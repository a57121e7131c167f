// Package memory keeps thumbnail decoding inside the process's memory budget.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//   - GOMEMLIMIT: standard Go variable; if set it takes precedence.
//   - MEMORY_LIMIT: container memory limit in bytes, typically from the
//     Kubernetes Downward API.
//   - MEMORY_RATIO: fraction of MEMORY_LIMIT given to the Go heap (default
//     0.85). Lower it when libvips is in use, since its allocations are not
//     counted by the Go runtime.
//
// # Backpressure
//
// A [Monitor] samples the heap every CheckInterval. Once usage crosses the
// critical water mark it pauses: [Monitor.WaitIfPaused] blocks every decode
// job until usage falls back below the high water mark, the monitor stops,
// or the job's context is cancelled.
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.WaitIfPaused(ctx); err != nil {
//	    return err // cache aborted
//	}
//
// A nil *Monitor is valid and never pauses.
package memory
