// Package sync provides BlockingMutex, the kernel's sole mutual-exclusion
// primitive for data shared across tasks (spec.md §4.8). It is grounded on
// the teacher's kernel/cpu.WithoutInterrupts critical-section convention
// and generalized into a full lock: an atomic locked bit guards the data,
// a FIFO wait queue of blocked task ids closes the wake race the same way
// kernel/sched's block_current_task/unblock_task pair does.
package sync

import (
	"sync/atomic"

	"duskos/kernel/cpu"
	"duskos/kernel/sched"
)

// maxWaiters bounds the wait queue the same way kernel/timer bounds its
// heap: a fixed array avoids a heap allocation inside a spinlock-adjacent
// path.
const maxWaiters = 64

// BlockingMutex is a spec.md §4.8 BlockingMutex<T>: a single atomic
// locked bit plus a wait queue of task ids. The zero value is unlocked
// and ready to use.
type BlockingMutex struct {
	locked int32

	waiters    [maxWaiters]uint64
	waiterHead int
	waiterLen  int
}

// TryLock performs the single non-blocking CAS spec.md describes for
// try_lock(). It reports whether the lock was acquired.
func (m *BlockingMutex) TryLock() bool {
	return atomic.CompareAndSwapInt32(&m.locked, 0, 1)
}

// Lock acquires the mutex: try CAS; on failure, spin if called from
// interrupt context (blocking is impossible there), otherwise enqueue the
// calling task and block_current_task, per spec.md §4.8.
func (m *BlockingMutex) Lock() {
	for {
		if m.TryLock() {
			return
		}
		if sched.IsInterruptContext() {
			continue
		}
		m.wait()
	}
}

// wait enqueues the current task id and blocks. A waiter that wakes
// re-enters Lock's CAS loop rather than assuming it now holds the lock,
// since Unlock hands off by simply waking a waiter, not by transferring
// ownership directly.
func (m *BlockingMutex) wait() {
	self := sched.CurrentTask()
	if self == nil {
		return
	}

	enqueued := false
	for {
		if m.TryLock() {
			return
		}
		if !enqueued {
			if m.enqueueWaiter(self.ID) {
				enqueued = true
			} else {
				continue
			}
		}
		sched.BlockCurrentTask()
		return
	}
}

func (m *BlockingMutex) enqueueWaiter(id uint64) bool {
	ok := false
	cpu.WithoutInterrupts(func() {
		if m.waiterLen >= maxWaiters {
			return
		}
		idx := (m.waiterHead + m.waiterLen) % maxWaiters
		m.waiters[idx] = id
		m.waiterLen++
		ok = true
	})
	return ok
}

func (m *BlockingMutex) dequeueWaiter() (uint64, bool) {
	var id uint64
	found := false
	cpu.WithoutInterrupts(func() {
		if m.waiterLen == 0 {
			return
		}
		id = m.waiters[m.waiterHead]
		m.waiterHead = (m.waiterHead + 1) % maxWaiters
		m.waiterLen--
		found = true
	})
	return id, found
}

// Unlock releases the lock and wakes one waiter, per spec.md §4.8 ("Drop
// of the guard releases the bit and wakes one waiter").
func (m *BlockingMutex) Unlock() {
	atomic.StoreInt32(&m.locked, 0)
	if id, ok := m.dequeueWaiter(); ok {
		sched.UnblockTask(id)
	}
}
