// File path: internal/keylock/keylock_test.go
package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerialisesSameKey(t *testing.T) {
	m := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(42)
			defer unlock()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
	if m.Len() != 0 {
		t.Fatalf("expected lock entries to be released, got %d", m.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	unlockA := m.Lock(1)
	defer unlockA()
	done := make(chan struct{})
	go func() {
		unlock := m.Lock(2)
		unlock()
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock for a different key blocked")
	}
}
