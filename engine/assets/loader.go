package assets

import (
	"time"

	"github.com/spaghettifunk/assetloader/engine/core"
)

// Fetcher is the callback-based primitive an AsyncLoader adapts. Implementations
// are expected to invoke exactly one of onSuccess or onFailure exactly once per
// call; onProgress may be invoked any number of times before that.
type Fetcher[T any] interface {
	Fetch(reference string, onSuccess func(T), onProgress func(Progress), onFailure func(error))
}

// FetcherFunc adapts an ordinary function to the Fetcher interface.
type FetcherFunc[T any] func(reference string, onSuccess func(T), onProgress func(Progress), onFailure func(error))

func (f FetcherFunc[T]) Fetch(reference string, onSuccess func(T), onProgress func(Progress), onFailure func(error)) {
	f(reference, onSuccess, onProgress, onFailure)
}

// Observer is told about every settled load. It cannot alter the outcome.
type Observer func(reference string, elapsed time.Duration, err error)

type AsyncLoaderOption[T any] func(*AsyncLoader[T])

// WithObserver registers a callback invoked once per load after it settles.
func WithObserver[T any](o Observer) AsyncLoaderOption[T] {
	return func(l *AsyncLoader[T]) {
		l.observer = o
	}
}

// WithStartHook registers a callback invoked when a load is started.
func WithStartHook[T any](h func(reference string)) AsyncLoaderOption[T] {
	return func(l *AsyncLoader[T]) {
		l.onStart = h
	}
}

// AsyncLoader turns a Fetcher into a call that yields one asset or one error.
// It keeps no state between calls: every Load reaches the fetcher, nothing is
// cached or retried, and the asset and error are handed back untouched.
type AsyncLoader[T any] struct {
	fetcher  Fetcher[T]
	observer Observer
	onStart  func(string)
}

func NewAsyncLoader[T any](fetcher Fetcher[T], opts ...AsyncLoaderOption[T]) *AsyncLoader[T] {
	l := &AsyncLoader[T]{fetcher: fetcher}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches reference and blocks until the fetcher reports an outcome.
// A fetcher that never calls back blocks the caller forever.
func (l *AsyncLoader[T]) Load(reference string) (T, error) {
	return l.LoadAsync(reference).Await()
}

// LoadAsync starts fetching reference and returns a Future for the outcome.
func (l *AsyncLoader[T]) LoadAsync(reference string) *Future[T] {
	reqID := core.NewRequestID()

	clock := core.NewClock()
	clock.Start()
	if l.onStart != nil {
		l.onStart(reference)
	}
	core.LogDebug("[%s] loading %q", reqID, reference)

	f := newFuture[T](reqID, func(err error) {
		clock.Stop()
		if err != nil {
			core.LogDebug("[%s] load of %q failed after %s: %s", reqID, reference, clock.Elapsed(), err.Error())
		} else {
			core.LogDebug("[%s] loaded %q in %s", reqID, reference, clock.Elapsed())
		}
		if l.observer != nil {
			l.observer(reference, clock.Elapsed(), err)
		}
	})

	l.fetcher.Fetch(reference,
		func(asset T) { f.resolve(asset) },
		func(Progress) {}, // progress is not forwarded
		func(err error) { f.reject(err) },
	)
	return f
}
