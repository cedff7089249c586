package registration

import (
	"context"
	"sync"
)

// future is a one-shot completion cell. The first resolve or reject
// wins; later outcomes are discarded.
type future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// complete settles the future. err is nil on success.
func (f *future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// wait blocks until the future settles or ctx ends.
func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settled reports whether the future has an outcome.
func (f *future) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
