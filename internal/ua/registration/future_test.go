package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestFutureFirstOutcomeWins(t *testing.T) {
	f := newFuture()
	first := errors.New("first")

	f.complete(first)
	f.complete(errors.New("second"))
	f.complete(nil)

	if err := f.wait(context.Background()); !errors.Is(err, first) {
		t.Errorf("wait = %v, want the first outcome", err)
	}
	if !f.settled() {
		t.Error("settled = false after complete")
	}
}

func TestFutureConcurrentCompleters(t *testing.T) {
	f := newFuture()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.complete(nil)
		}()
	}
	wg.Wait()

	if err := f.wait(context.Background()); err != nil {
		t.Errorf("wait = %v, want nil", err)
	}
}

func TestFutureWaitUnsettled(t *testing.T) {
	f := newFuture()
	if f.settled() {
		t.Error("new future must not be settled")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("wait = %v, want context.Canceled", err)
	}
}
