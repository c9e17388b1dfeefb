package assets

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type model struct {
	Vertices int
}

// asyncStub answers every fetch on a new goroutine using the outcome returned by respond.
func asyncStub[T any](respond func(ref string, call int) (T, error)) (Fetcher[T], *atomic.Int32) {
	var calls atomic.Int32
	return FetcherFunc[T](func(ref string, onSuccess func(T), onProgress func(Progress), onFailure func(error)) {
		n := int(calls.Add(1))
		go func() {
			v, err := respond(ref, n)
			if err != nil {
				onFailure(err)
				return
			}
			onSuccess(v)
		}()
	}), &calls
}

func TestLoadResolvesWithAsset(t *testing.T) {
	fetcher, calls := asyncStub(func(ref string, _ int) (*model, error) {
		assert.Equal(t, "model.glb", ref)
		return &model{Vertices: 120}, nil
	})
	l := NewAsyncLoader[*model](fetcher)

	m, err := l.Load("model.glb")
	require.NoError(t, err)
	assert.Equal(t, &model{Vertices: 120}, m)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadFailsWithCollaboratorError(t *testing.T) {
	fetcher, _ := asyncStub(func(string, int) (*model, error) {
		return nil, errors.New("404")
	})
	l := NewAsyncLoader[*model](fetcher)

	m, err := l.Load("bad.glb")
	assert.Nil(t, m)
	require.Error(t, err)
	assert.EqualError(t, err, "404")
}

func TestLoadPassesValuesThroughUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ref := rapid.StringMatching(`[a-z]{1,12}\.glb`).Draw(t, "ref")
		fail := rapid.Bool().Draw(t, "fail")

		want := &model{Vertices: rapid.IntRange(0, 1<<20).Draw(t, "vertices")}
		wantErr := fmt.Errorf("fetch %s", ref)

		fetcher, _ := asyncStub(func(string, int) (*model, error) {
			if fail {
				return nil, wantErr
			}
			return want, nil
		})
		got, err := NewAsyncLoader[*model](fetcher).Load(ref)
		if fail {
			if err != wantErr {
				t.Fatalf("error was not passed through: got %v", err)
			}
			if got != nil {
				t.Fatalf("failed load returned an asset")
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if got != want {
			t.Fatalf("asset identity not preserved")
		}
	})
}

func TestLoadDoesNotMemoize(t *testing.T) {
	a1, a2 := &model{Vertices: 1}, &model{Vertices: 2}
	fetcher, calls := asyncStub(func(_ string, call int) (*model, error) {
		if call == 1 {
			return a1, nil
		}
		return a2, nil
	})
	l := NewAsyncLoader[*model](fetcher)

	first, err := l.Load("same.glb")
	require.NoError(t, err)
	second, err := l.Load("same.glb")
	require.NoError(t, err)

	assert.Same(t, a1, first)
	assert.Same(t, a2, second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConcurrentLoadsAreIndependent(t *testing.T) {
	const n = 64
	fetcher, calls := asyncStub(func(ref string, _ int) (string, error) {
		time.Sleep(time.Duration(len(ref)%5) * time.Millisecond)
		if len(ref)%2 == 0 {
			return "", errors.New(ref)
		}
		return "asset:" + ref, nil
	})
	l := NewAsyncLoader[string](fetcher)

	var wg sync.WaitGroup
	values := make([]string, n)
	errs := make([]error, n)
	refs := make([]string, n)
	for i := 0; i < n; i++ {
		refs[i] = fmt.Sprintf("m%0*d", i%4+1, i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = l.Load(refs[i])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(n), calls.Load())
	for i, ref := range refs {
		if len(ref)%2 == 0 {
			assert.EqualError(t, errs[i], ref)
			assert.Empty(t, values[i])
		} else {
			assert.NoError(t, errs[i])
			assert.Equal(t, "asset:"+ref, values[i])
		}
	}
}

func TestProgressNeverSettlesLoad(t *testing.T) {
	release := make(chan struct{})
	progressSeen := make(chan struct{})
	fetcher := FetcherFunc[string](func(ref string, onSuccess func(string), onProgress func(Progress), onFailure func(error)) {
		go func() {
			for i := int64(1); i <= 3; i++ {
				onProgress(Progress{Reference: ref, Loaded: i, Total: 3})
			}
			close(progressSeen)
			<-release
			onSuccess("done")
		}()
	})

	f := NewAsyncLoader[string](fetcher).LoadAsync("slow.glb")
	<-progressSeen
	select {
	case <-f.Done():
		t.Fatal("load settled before the terminal callback")
	case <-time.After(10 * time.Millisecond):
	}

	close(release)
	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestSynchronousCallbacks(t *testing.T) {
	fetcher := FetcherFunc[int](func(_ string, onSuccess func(int), _ func(Progress), _ func(error)) {
		onSuccess(7)
	})
	v, err := NewAsyncLoader[int](fetcher).Load("inline")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDuplicateCallbacksAreIgnored(t *testing.T) {
	fetcher := FetcherFunc[int](func(_ string, onSuccess func(int), _ func(Progress), onFailure func(error)) {
		onSuccess(1)
		onFailure(errors.New("late"))
		onSuccess(2)
	})

	var observed atomic.Int32
	l := NewAsyncLoader[int](fetcher, WithObserver[int](func(string, time.Duration, error) {
		observed.Add(1)
	}))

	v, err := l.Load("twice")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), observed.Load())
}

func TestHooksSeeEachLoad(t *testing.T) {
	fetcher, _ := asyncStub(func(ref string, _ int) (int, error) {
		if ref == "bad" {
			return 0, errors.New("404")
		}
		return 1, nil
	})

	var mu sync.Mutex
	started := []string{}
	outcomes := map[string]error{}
	l := NewAsyncLoader[int](fetcher,
		WithStartHook[int](func(ref string) {
			mu.Lock()
			started = append(started, ref)
			mu.Unlock()
		}),
		WithObserver[int](func(ref string, elapsed time.Duration, err error) {
			mu.Lock()
			outcomes[ref] = err
			mu.Unlock()
			assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		}),
	)

	_, _ = l.Load("good")
	_, _ = l.Load("bad")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"good", "bad"}, started)
	assert.NoError(t, outcomes["good"])
	assert.EqualError(t, outcomes["bad"], "404")
}

func TestPendingFutureStaysPending(t *testing.T) {
	never := FetcherFunc[int](func(string, func(int), func(Progress), func(error)) {})
	f := NewAsyncLoader[int](never).LoadAsync("lost")
	select {
	case <-f.Done():
		t.Fatal("future settled without a callback")
	case <-time.After(5 * time.Millisecond):
	}
}
