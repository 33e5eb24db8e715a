package configtree

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// recursiveMutex is a re-entrant mutex keyed by goroutine ID, used as each
// node's transaction lock (a "recursive transaction lock").
// Go has no native re-entrant mutex or thread-local storage; this is the
// standard goroutine-ID-parsing trick for building one, scoped narrowly to
// this single concern per the design note ("enforce in debug
// builds with a per-thread re-entry counter").
type recursiveMutex struct {
	real  sync.Mutex // the actual lock held across non-reentrant acquisitions
	meta  sync.Mutex // protects owner/count below
	owner uint64
	count int
}

func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

// Lock acquires the lock, or increments the re-entry count if the calling
// goroutine already holds it.
func (m *recursiveMutex) Lock() {
	gid := goroutineID()

	m.meta.Lock()
	if m.count > 0 && m.owner == gid {
		m.count++
		m.meta.Unlock()
		return
	}
	m.meta.Unlock()

	m.real.Lock()

	m.meta.Lock()
	m.owner = gid
	m.count = 1
	m.meta.Unlock()
}

// Unlock releases one level of re-entry, unlocking for real once the count
// reaches zero. Panics if called by a goroutine that does not hold the
// lock, per the design note's "enforce... with a per-thread re-entry
// counter".
func (m *recursiveMutex) Unlock() {
	gid := goroutineID()

	m.meta.Lock()
	if m.owner != gid || m.count == 0 {
		m.meta.Unlock()
		panic("configtree: Unlock called by a goroutine that does not hold the transaction lock")
	}
	m.count--
	remaining := m.count
	if remaining == 0 {
		m.owner = 0
	}
	m.meta.Unlock()

	if remaining == 0 {
		m.real.Unlock()
	}
}

// heldByCurrentGoroutine reports whether the calling goroutine currently
// holds the lock. Nothing in the package calls it; re-entrant structural
// mutation from within a listener callback is not detected.
func (m *recursiveMutex) heldByCurrentGoroutine() bool {
	gid := goroutineID()
	m.meta.Lock()
	defer m.meta.Unlock()
	return m.count > 0 && m.owner == gid
}
