package thumbcache

import (
	"context"
	"sync"
)

// Future is the eventual result of a cache request.
type Future struct {
	done chan struct{}
	once sync.Once
	info *Info
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolved(info *Info, err error) *Future {
	f := newFuture()
	f.resolve(info, err)
	return f
}

func (f *Future) resolve(info *Info, err error) {
	f.once.Do(func() {
		f.info, f.err = info, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the result is available.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking. Before the future is ready it
// returns ErrPending.
func (f *Future) Result() (*Info, error) {
	if !f.Ready() {
		return nil, ErrPending
	}
	return f.info, f.err
}

// Wait blocks until the result is available or ctx is done. A failed decode
// returns ErrNoThumbnail together with a placeholder Info.
func (f *Future) Wait(ctx context.Context) (*Info, error) {
	select {
	case <-f.done:
		return f.info, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
