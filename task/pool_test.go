package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRegistry() Registry {
	return Registry{
		"double": func(payload any) (any, error) {
			return payload.(int) * 2, nil
		},
		"fail": func(payload any) (any, error) {
			return nil, errors.New("boom")
		},
		"panic": func(payload any) (any, error) {
			panic("oops")
		},
		"sleep": func(payload any) (any, error) {
			time.Sleep(payload.(time.Duration))
			return nil, nil
		},
	}
}

func TestSubmitAndResolve(t *testing.T) {
	pool := NewPool(2, testRegistry())
	defer pool.Dispose()

	pending, err := pool.Submit("double", 21)
	require.NoError(t, err)

	res := <-pending.Done()
	require.NoError(t, res.Err)
	require.Equal(t, 42, res.Value)
}

func TestSubmitUnknownKind(t *testing.T) {
	pool := NewPool(1, testRegistry())
	defer pool.Dispose()

	_, err := pool.Submit("nope", nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestHandlerErrorPropagates(t *testing.T) {
	pool := NewPool(1, testRegistry())
	defer pool.Dispose()

	pending, err := pool.Submit("fail", nil)
	require.NoError(t, err)

	res := <-pending.Done()
	require.Error(t, res.Err)
}

func TestHandlerPanicBecomesError(t *testing.T) {
	pool := NewPool(1, testRegistry())
	defer pool.Dispose()

	pending, err := pool.Submit("panic", nil)
	require.NoError(t, err)

	res := <-pending.Done()
	require.Error(t, res.Err)
}

func TestPollNonBlocking(t *testing.T) {
	pool := NewPool(1, testRegistry())
	defer pool.Dispose()

	pending, err := pool.Submit("sleep", 50*time.Millisecond)
	require.NoError(t, err)

	if _, ok := pending.Poll(); ok {
		t.Error("Poll should not report a result immediately")
	}

	res := <-pending.Done()
	require.NoError(t, res.Err)
}

func TestDisposeRejectsInFlight(t *testing.T) {
	pool := NewPool(1, testRegistry())

	// First task occupies the single worker; the rest sit in its queue.
	var handles []*Pending
	for i := 0; i < 4; i++ {
		p, err := pool.Submit("sleep", 30*time.Millisecond)
		require.NoError(t, err)
		handles = append(handles, p)
	}

	pool.Dispose()

	rejected := 0
	for _, h := range handles {
		res := <-h.Done()
		if errors.Is(res.Err, ErrTerminated) {
			rejected++
		}
	}
	if rejected == 0 {
		t.Error("expected at least one queued task rejected with ErrTerminated")
	}

	_, err := pool.Submit("double", 1)
	require.ErrorIs(t, err, ErrTerminated)
}

func TestBlockedSubmitUnblocksOnDispose(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	pool := NewPool(1, Registry{
		"hold": func(any) (any, error) {
			started <- struct{}{}
			<-release
			return nil, nil
		},
	})

	// Occupy the single worker, then fill its queue to the brim.
	if _, err := pool.Submit("hold", nil); err != nil {
		t.Fatal(err)
	}
	<-started
	for i := 0; i < cap(pool.workers[0].tasks); i++ {
		if _, err := pool.Submit("hold", nil); err != nil {
			t.Fatal(err)
		}
	}

	results := make(chan Result, 1)
	go func() {
		pending, err := pool.Submit("hold", nil)
		if err != nil {
			results <- Result{Err: err}
			return
		}
		results <- <-pending.Done()
	}()
	time.Sleep(10 * time.Millisecond) // let the submit block on the full queue

	disposed := make(chan struct{})
	go func() {
		pool.Dispose()
		close(disposed)
	}()

	res := <-results
	require.ErrorIs(t, res.Err, ErrTerminated)

	close(release)
	<-disposed
}

func TestLeastLoadedDistribution(t *testing.T) {
	pool := NewPool(4, testRegistry())
	defer pool.Dispose()

	var handles []*Pending
	for i := 0; i < 16; i++ {
		p, err := pool.Submit("double", i)
		require.NoError(t, err)
		handles = append(handles, p)
	}
	for i, h := range handles {
		res := <-h.Done()
		require.NoError(t, res.Err)
		require.Equal(t, i*2, res.Value)
	}
	require.Equal(t, 0, pool.PendingCount())
}
