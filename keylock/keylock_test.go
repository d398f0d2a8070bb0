package keylock

import (
	"sync"
	"testing"
)

func TestLock_SerializesSameKey(t *testing.T) {
	var m Map
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("doc1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestLock_ReleasedKeysAreEvicted(t *testing.T) {
	var m Map

	for _, key := range []string{"a", "b", "c"} {
		m.Lock(key)()
	}
	if n := m.Len(); n != 0 {
		t.Errorf("Len() = %d after release, want 0", n)
	}

	unlockA := m.Lock("a")
	unlockB := m.Lock("b")
	if n := m.Len(); n != 2 {
		t.Errorf("Len() = %d while held, want 2", n)
	}
	unlockA()
	unlockB()
	if n := m.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestLock_DistinctKeysDoNotBlock(t *testing.T) {
	var m Map
	unlock := m.Lock("a")
	defer unlock()

	done := make(chan struct{})
	go func() {
		m.Lock("b")()
		close(done)
	}()
	<-done
}
