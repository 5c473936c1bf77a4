// Package inprocess provides the single-process owner lock: channel-backed
// mutexes keyed by owner, reference counted so idle owners do not
// accumulate entries forever.
package inprocess

import (
	"context"
	"sync"
)

type entry struct {
	// ch has capacity 1; holding the token is holding the lock. A channel
	// rather than a sync.Mutex so acquisition can observe cancellation.
	ch   chan struct{}
	refs int
}

// Locker implements ownerlock.Locker for deployments where a single
// process owns the whole pipeline.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocker creates an in-process owner locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Acquire blocks until the owner's lock is free or the context ends.
func (l *Locker) Acquire(ctx context.Context, owner string) (func(), error) {
	// A free token and a done context would otherwise race in the select.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	e, ok := l.locks[owner]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[owner] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.put(owner, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.ch
			l.put(owner, e)
		})
	}
	return release, nil
}

// put drops one reference and removes the owner's entry once nobody holds
// or waits on it.
func (l *Locker) put(owner string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, owner)
	}
}

// Close is a no-op for the in-process locker.
func (l *Locker) Close() error {
	return nil
}
