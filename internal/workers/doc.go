/*
Package workers sizes and runs the goroutine pools used for thumbnail decoding
and directory walks.

# Sizing

Worker counts are derived from GOMAXPROCS, which Go sets from the container's
CPU quota, rather than runtime.NumCPU, which reports the host:

	decoders := workers.For(workers.Decode, 0) // one per CPU
	walkers := workers.For(workers.Scan, 16)   // two per CPU, at most 16

Operators can pin the count per kind with CREEVEY_DECODE_WORKERS or
CREEVEY_SCAN_WORKERS, or for both with CREEVEY_WORKERS. The limit still
applies.

# Pool

[Pool] is a fixed set of goroutines behind a bounded queue. [Pool.TrySubmit]
never blocks and returns [ErrBusy] when the queue is full, [Pool.Drain] drops
queued jobs that have not started, and [Pool.Close] waits for the rest.

	pool := workers.NewPool(workers.For(workers.Decode, 0), 1024)
	defer pool.Close()

	if err := pool.TrySubmit(job); errors.Is(err, workers.ErrBusy) {
	    // shed load
	}
*/
package workers
