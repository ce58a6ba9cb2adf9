package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyLocksSerialiseSameKey(t *testing.T) {
	var (
		locks   keyLocks
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.lock(context.Background(), "CA1")
			if err != nil {
				t.Errorf("lock err: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if locks.size() != 0 {
		t.Fatalf("expected lock entries to be released, got %d", locks.size())
	}
}

func TestKeyLocksHonourContext(t *testing.T) {
	var locks keyLocks

	unlock, err := locks.lock(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("lock err: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locks.lock(ctx, "CA1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := locks.lock(context.Background(), "CA2")
	if err != nil {
		t.Fatalf("independent key should not block: %v", err)
	}
	other()
}
