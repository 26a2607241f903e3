package sync

import "testing"

func TestTryLockSucceedsOnceThenFails(t *testing.T) {
	var m BlockingMutex

	if !m.TryLock() {
		t.Fatal("expected first TryLock to succeed")
	}
	if m.TryLock() {
		t.Fatal("expected second TryLock to fail while held")
	}
}

func TestUnlockAllowsReacquisition(t *testing.T) {
	var m BlockingMutex

	if !m.TryLock() {
		t.Fatal("expected TryLock to succeed")
	}
	m.Unlock()

	if !m.TryLock() {
		t.Fatal("expected TryLock to succeed again after Unlock")
	}
}

func TestEnqueueWaiterRespectsCapacity(t *testing.T) {
	var m BlockingMutex

	for i := 0; i < maxWaiters; i++ {
		if !m.enqueueWaiter(uint64(i)) {
			t.Fatalf("expected waiter %d to enqueue within capacity", i)
		}
	}
	if m.enqueueWaiter(999) {
		t.Fatal("expected enqueue to fail once the wait queue is full")
	}
}

func TestDequeueWaiterIsFIFO(t *testing.T) {
	var m BlockingMutex

	m.enqueueWaiter(1)
	m.enqueueWaiter(2)
	m.enqueueWaiter(3)

	for _, want := range []uint64{1, 2, 3} {
		got, ok := m.dequeueWaiter()
		if !ok || got != want {
			t.Fatalf("expected waiter %d; got %d (ok=%v)", want, got, ok)
		}
	}
	if _, ok := m.dequeueWaiter(); ok {
		t.Fatal("expected dequeue to report empty after draining all waiters")
	}
}

func TestUnlockWithNoWaitersDoesNotPanic(t *testing.T) {
	var m BlockingMutex
	m.TryLock()
	m.Unlock()
}
