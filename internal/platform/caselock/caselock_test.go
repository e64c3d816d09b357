package caselock

import (
	"sync"
	"testing"
)

func TestRegistry_SameCaseSerialized(t *testing.T) {
	r := NewRegistry()

	const workers = 20
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = r.Do("case-1", func() error {
				// Unsynchronized increment; the case lock is the only guard.
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("expected %d increments, got %d", workers, counter)
	}
}

func TestRegistry_DifferentCasesIndependent(t *testing.T) {
	r := NewRegistry()

	r.Lock("case-a")
	defer r.Unlock("case-a")

	// Acquiring case-b must not block while case-a is held.
	done := make(chan struct{})
	go func() {
		r.Lock("case-b")
		r.Unlock("case-b")
		close(done)
	}()
	<-done
}

func TestRegistry_DoPropagatesError(t *testing.T) {
	r := NewRegistry()
	wantErr := errSentinel
	if err := r.Do("case-1", func() error { return wantErr }); err != wantErr {
		t.Errorf("expected error passthrough, got %v", err)
	}
}

var errSentinel = &lockTestError{}

type lockTestError struct{}

func (e *lockTestError) Error() string { return "test error" }
