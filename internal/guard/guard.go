// Package guard provides the single-entry lock held by every
// state-mutating operation that performs an external value transfer.
// A nested call reaching a guarded operation while one is in progress
// fails with entity.ErrReentrantCall instead of blocking.
package guard

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/meridianvault/meridian/internal/entity"
)

// Guard is a non-blocking, non-reentrant entry flag scoped to one
// instance. The zero value is ready to use.
type Guard struct {
	busy atomic.Bool
}

// Enter acquires the guard or fails when an operation is already in
// progress. Callers must release with Exit on every path out.
func (g *Guard) Enter(op string) error {
	if !g.busy.CompareAndSwap(false, true) {
		return errors.Wrap(entity.ErrReentrantCall, op)
	}
	return nil
}

// Exit releases the guard unconditionally.
func (g *Guard) Exit() {
	g.busy.Store(false)
}
