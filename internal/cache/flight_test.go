package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFlight_CollapsesConcurrentCalls(t *testing.T) {
	f := NewFlight()
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return []byte("payload"), nil
	}

	const callers = 10
	results := make([][]byte, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Do("k", fn)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}()
	}
	// let all callers join the in-flight entry, then settle it
	<-started
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one underlying call, got %d", got)
	}
	for i, r := range results {
		if string(r) != "payload" {
			t.Fatalf("caller %d observed %q, want shared settlement", i, r)
		}
	}
}

func TestFlight_ErrorSharedThenCleared(t *testing.T) {
	f := NewFlight()
	boom := errors.New("upstream down")
	var calls int32

	_, err := f.Do("k", func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the call's own error, got %v", err)
	}

	// the registry entry is gone after settlement; a retry calls again
	v, err := f.Do("k", func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("ok"), nil
	})
	if err != nil || string(v) != "ok" {
		t.Fatalf("expected fresh call to succeed, got v=%q err=%v", v, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected two underlying calls across retry, got %d", calls)
	}
}
