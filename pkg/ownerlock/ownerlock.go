// Package ownerlock serializes pipeline runs per owner: at most one
// in-flight run may hold a given owner at a time. Two concurrent windows
// for the same owner would otherwise race their consolidation decisions
// against the same stored facts.
package ownerlock

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the lock backend could not be reached.
// Transient: callers may retry.
var ErrUnavailable = errors.New("owner lock unavailable")

// Locker grants exclusive processing rights for one owner at a time.
type Locker interface {
	// Acquire blocks until the owner's lock is held or the context ends.
	// The returned release function gives the lock back; calling it more
	// than once is safe.
	Acquire(ctx context.Context, owner string) (release func(), err error)

	// Close releases resources held by the locker.
	Close() error
}
