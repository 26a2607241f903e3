// Package timer implements the kernel's timer wheel: a min-heap of
// absolute-tick expiries and the two-phase softirq drain that runs
// callbacks with interrupts enabled (spec.md §4.6). It is grounded on the
// teacher's container/heap-free style of hand-rolled data structures
// (kfmt/ringbuf.go's manual index arithmetic) generalized into a binary
// heap, and on kernel/cpu.WithoutInterrupts for every critical section
// touching the heap or the pending queue, per spec.md §5's "always held
// under interrupt-disable" rule for shared kernel state.
package timer

import "duskos/kernel/cpu"

// Callback is a type-erased one-shot timer callback. Unlike a Rust boxed
// closure, a Go func value already carries its own captured state, so no
// separate (fn, ctx) pair is needed to avoid allocating a trait object.
type Callback func()

type heapEntry struct {
	expiresAt uint64
	cb        Callback
}

const maxTimers = 256

var (
	heap       [maxTimers]heapEntry
	heapLen    int
	currentTick uint64

	pending    [maxTimers]Callback
	pendingLen int

	softirqPending bool
	inSoftirq      bool
)

// CurrentTick returns the tick counter timer.Tick advances, exposed so
// kernel/sched can read it for scheduling decisions without a second
// counter.
func CurrentTick() uint64 {
	var t uint64
	cpu.WithoutInterrupts(func() { t = currentTick })
	return t
}

// RegisterTimer pushes (current_tick + delayTicks, cb) onto the min-heap,
// per spec.md §4.6. It is safe to call from any context.
func RegisterTimer(delayTicks uint64, cb Callback) {
	cpu.WithoutInterrupts(func() {
		if heapLen >= maxTimers {
			return
		}
		heap[heapLen] = heapEntry{expiresAt: currentTick + delayTicks, cb: cb}
		heapLen++
		siftUp(heapLen - 1)
	})
}

// Tick advances the tick counter by one and moves every expired timer from
// the heap onto the pending FIFO, setting softirqPending if any moved. This
// runs in interrupt context (the APIC timer handler) and must stay short:
// it only enqueues, per spec.md §4.6's two-phase design.
func Tick() {
	cpu.WithoutInterrupts(func() {
		currentTick++
		for heapLen > 0 && heap[0].expiresAt <= currentTick {
			entry := heap[0]
			heapLen--
			heap[0] = heap[heapLen]
			siftDown(0)

			if pendingLen < maxTimers {
				pending[pendingLen] = entry.cb
				pendingLen++
				softirqPending = true
			}
		}
	})
}

// DoSoftirq drains the pending FIFO with interrupts enabled between
// dequeues, per spec.md §4.6. The re-entrance guard (inSoftirq) ensures a
// nested interrupt cannot start a second concurrent pass; it is intended
// to run with interrupts enabled on return from the timer ISR.
func DoSoftirq() {
	var alreadyRunning bool
	cpu.WithoutInterrupts(func() {
		if inSoftirq {
			alreadyRunning = true
			return
		}
		inSoftirq = true
	})
	if alreadyRunning {
		return
	}
	defer cpu.WithoutInterrupts(func() { inSoftirq = false })

	for {
		var runAgain bool
		cpu.WithoutInterrupts(func() {
			if softirqPending {
				softirqPending = false
				runAgain = true
			}
		})
		if !runAgain {
			return
		}
		processPendingTimers()
	}
}

// processPendingTimers dequeues pending timers one at a time under brief
// interrupt-disable and invokes each callback with interrupts enabled, per
// spec.md §4.6.
func processPendingTimers() {
	for {
		var (
			cb   Callback
			found bool
		)
		cpu.WithoutInterrupts(func() {
			if pendingLen == 0 {
				return
			}
			cb = pending[0]
			pendingLen--
			copy(pending[:pendingLen], pending[1:pendingLen+1])
			found = true
		})
		if !found {
			return
		}
		cb()
	}
}

func siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if heap[parent].expiresAt <= heap[i].expiresAt {
			break
		}
		heap[parent], heap[i] = heap[i], heap[parent]
		i = parent
	}
}

func siftDown(i int) {
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < heapLen && heap[left].expiresAt < heap[smallest].expiresAt {
			smallest = left
		}
		if right < heapLen && heap[right].expiresAt < heap[smallest].expiresAt {
			smallest = right
		}
		if smallest == i {
			return
		}
		heap[i], heap[smallest] = heap[smallest], heap[i]
		i = smallest
	}
}
