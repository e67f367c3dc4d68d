package application

import "sync/atomic"

// EntryGuard is the single-entry gate around balance-mutating operations.
// While one deposit or withdrawal holds the gate, any nested call into the
// vault from the same logical operation (for example a token transfer
// calling back during its own dispatch) fails to acquire and is rejected
// uncommitted. Acquisition never blocks; the losing caller resubmits.
type EntryGuard struct {
	busy atomic.Bool
}

func NewEntryGuard() *EntryGuard {
	return &EntryGuard{}
}

func (g *EntryGuard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *EntryGuard) Release() {
	g.busy.Store(false)
}
