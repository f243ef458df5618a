// Package feed provides the in-process change feed used by the memory
// store and by single-instance deployments of the postgres store.
package feed

import (
	"context"
	"sync"
)

type Local struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]chan struct{}
}

func NewLocal() *Local {
	return &Local{listeners: map[string]map[int]chan struct{}{}}
}

// Publish wakes every listener on location. Notifications coalesce: a
// listener that has not drained the previous one gets no second signal.
func (f *Local) Publish(_ context.Context, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.listeners[location] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *Local) Listen(ctx context.Context, location string) (<-chan struct{}, func(), error) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	ch := make(chan struct{}, 1)
	if f.listeners[location] == nil {
		f.listeners[location] = map[int]chan struct{}{}
	}
	f.listeners[location][id] = ch
	f.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners[location], id)
			if len(f.listeners[location]) == 0 {
				delete(f.listeners, location)
			}
			f.mu.Unlock()
		})
	}
	return ch, stop, nil
}

// Listeners returns how many listeners are registered on location.
func (f *Local) Listeners(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[location])
}
