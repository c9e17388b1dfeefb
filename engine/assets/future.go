package assets

import (
	"sync"

	"github.com/spaghettifunk/assetloader/engine/core"
)

// Future holds the outcome of a single load. It settles at most once.
type Future[T any] struct {
	id    string
	once  sync.Once
	done  chan struct{}
	value T
	err   error

	// runs once, before waiters are released
	onSettle func(err error)
}

func newFuture[T any](id string, onSettle func(err error)) *Future[T] {
	return &Future[T]{
		id:       id,
		done:     make(chan struct{}),
		onSettle: onSettle,
	}
}

// Done is closed once the load has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the load settles and returns its outcome.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}

func (f *Future[T]) resolve(value T) {
	f.settle(func() { f.value = value })
}

func (f *Future[T]) reject(err error) {
	f.settle(func() { f.err = err })
}

func (f *Future[T]) settle(set func()) {
	settled := false
	f.once.Do(func() {
		set()
		if f.onSettle != nil {
			f.onSettle(f.err)
		}
		close(f.done)
		settled = true
	})
	if !settled {
		core.LogDebug("[%s] ignoring callback for an already settled load", f.id)
	}
}
