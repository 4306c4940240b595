package chunked

import "sync/atomic"

// rwSpinLock is a writer-biased reader/writer spin-lock: once a writer has
// set its intent, new readers cannot outrun it indefinitely, but a reader
// that is already inside the critical section is never blocked by a writer
// that arrives afterward until it calls unlockShared.
//
// A writer CASes writeNow then drains readersCount to zero; a reader spins
// on writeNow, bumps readersCount, then re-checks writeNow to close the
// race against a writer that won the CAS in between.
type rwSpinLock struct {
	readersCount atomic.Int32
	writeNow     atomic.Bool
}

func (l *rwSpinLock) lock() {
	spins := 0
	for !l.writeNow.CompareAndSwap(false, true) {
		delay(&spins)
	}
	spins = 0
	for l.readersCount.Load() != 0 {
		delay(&spins)
	}
}

func (l *rwSpinLock) unlock() {
	l.writeNow.Store(false)
}

func (l *rwSpinLock) tryLock() bool {
	if l.readersCount.Load() != 0 {
		return false
	}
	if !l.writeNow.CompareAndSwap(false, true) {
		return false
	}
	if l.readersCount.Load() == 0 {
		return true
	}
	l.unlock()
	return false
}

// lockShared blocks until no writer holds or is waiting for the lock. Do
// not call it recursively on the same goroutine for the same lock (e.g.
// while already holding it shared): a writer can win the writeNow CAS
// between the outer and the inner call, after which the inner call spins on
// writeNow forever while the writer itself spins forever waiting for the
// outer hold's readersCount to drain — see ownershipLock's doc comment.
// tryLockShared does not have this problem and is what every recursion-prone
// call site in this module uses instead.
func (l *rwSpinLock) lockShared() {
	for {
		spins := 0
		for l.writeNow.Load() {
			delay(&spins)
		}
		l.readersCount.Add(1)
		if !l.writeNow.Load() {
			return
		}
		l.unlockShared()
	}
}

func (l *rwSpinLock) unlockShared() {
	l.readersCount.Add(-1)
}

func (l *rwSpinLock) tryLockShared() bool {
	if l.writeNow.Load() {
		return false
	}
	l.readersCount.Add(1)
	if !l.writeNow.Load() {
		return true
	}
	l.unlockShared()
	return false
}
