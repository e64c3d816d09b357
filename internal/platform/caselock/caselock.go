// Package caselock serializes compliance evaluation per surgical case.
// Evaluations for different cases run concurrently; two evaluations for the
// same case never overlap.
package caselock

import "sync"

// Registry hands out one mutex per case ID.
type Registry struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

func (r *Registry) get(caseID string) *sync.Mutex {
	r.mu.RLock()
	m, ok := r.locks[caseID]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok = r.locks[caseID]; ok {
		return m
	}
	m = &sync.Mutex{}
	r.locks[caseID] = m
	return m
}

// Lock acquires the mutex for caseID, creating it on first use.
func (r *Registry) Lock(caseID string) {
	r.get(caseID).Lock()
}

// Unlock releases the mutex for caseID.
func (r *Registry) Unlock(caseID string) {
	r.get(caseID).Unlock()
}

// Do runs fn while holding the case lock.
func (r *Registry) Do(caseID string, fn func() error) error {
	m := r.get(caseID)
	m.Lock()
	defer m.Unlock()
	return fn()
}
