package sched

import "testing"

func resetBlockingForTest() {
	resetScheduleForTest()
	wakeupPending = map[uint64]struct{}{}
	ticksPerMs = 1
	registerTimerFn = func(delayTicks uint64, cb func()) {}
	isInterruptContextFn = func() bool { return false }
}

func TestUnblockTaskMovesBlockedTaskToReady(t *testing.T) {
	resetBlockingForTest()

	task := mustTask(t, "blocked", Normal, 0, 0)
	task.State = Blocked
	blockedTasks[task.ID] = task

	UnblockTask(task.ID)

	if task.State != Ready {
		t.Fatalf("expected task to become Ready; got %v", task.State)
	}
	if _, stillBlocked := blockedTasks[task.ID]; stillBlocked {
		t.Fatal("expected task to be removed from blockedTasks")
	}
	if pickNext() != task {
		t.Fatal("expected unblocked task to be enqueued on its run queue")
	}
}

func TestUnblockTaskBeforeBlockRecordsWakeupPending(t *testing.T) {
	resetBlockingForTest()

	UnblockTask(42)

	if _, ok := wakeupPending[42]; !ok {
		t.Fatal("expected wakeup_pending to record the early wake")
	}
}

func TestBlockCurrentTaskDetectsLostWakeupAndSkipsBlocking(t *testing.T) {
	resetBlockingForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	task := mustTask(t, "current", Normal, 0, 0)
	Init(task)
	wakeupPending[task.ID] = struct{}{}

	BlockCurrentTask()

	if task.State == Blocked {
		t.Fatal("expected the lost-wakeup guard to prevent committing to Blocked")
	}
	if _, ok := wakeupPending[task.ID]; ok {
		t.Fatal("expected wakeup_pending entry to be consumed")
	}
	if len(calls) != 0 {
		t.Fatal("expected no reschedule when the wake already arrived")
	}
}

func TestBlockCurrentTaskBlocksAndSchedulesWhenNoPendingWake(t *testing.T) {
	resetBlockingForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	task := mustTask(t, "current", Normal, 0, 0)
	Init(task)
	other := mustTask(t, "other", Idle, 0, 0)
	enqueueReady(other)

	BlockCurrentTask()

	if len(calls) != 1 {
		t.Fatalf("expected BlockCurrentTask to trigger exactly one context switch; got %d", len(calls))
	}
	if _, ok := blockedTasks[task.ID]; !ok {
		t.Fatal("expected task to land in blockedTasks")
	}
}

func TestSleepMsZeroYields(t *testing.T) {
	resetBlockingForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	task := mustTask(t, "current", Idle, 0, 0)
	Init(task)
	other := mustTask(t, "other", Idle, 0, 0)
	enqueueReady(other)

	SleepMs(0)

	if len(calls) != 1 {
		t.Fatal("expected sleep_ms(0) to behave like yield_now")
	}
}

func TestSleepMsRegistersTimerThenBlocks(t *testing.T) {
	resetBlockingForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	var registeredDelay uint64
	var registeredCb func()
	registerTimerFn = func(delay uint64, cb func()) {
		registeredDelay = delay
		registeredCb = cb
	}
	ticksPerMs = 10

	task := mustTask(t, "sleeper", Normal, 0, 0)
	Init(task)
	other := mustTask(t, "other", Idle, 0, 0)
	enqueueReady(other)

	SleepMs(5)

	if registeredDelay != 50 {
		t.Fatalf("expected delay of 5ms * 10 ticks/ms = 50 ticks; got %d", registeredDelay)
	}
	if _, ok := blockedTasks[task.ID]; !ok {
		t.Fatal("expected sleeping task to be blocked")
	}

	registeredCb()
	if task.State != Ready {
		t.Fatalf("expected firing the registered timer callback to unblock the task; got %v", task.State)
	}
}

func TestSleepMsIsNoOpInInterruptContext(t *testing.T) {
	resetBlockingForTest()
	isInterruptContextFn = func() bool { return true }
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	task := mustTask(t, "current", Idle, 0, 0)
	Init(task)

	SleepMs(100)

	if len(calls) != 0 {
		t.Fatal("expected sleep_ms to be a no-op when called from interrupt context")
	}
}

func TestMsToTicksRoundsDownButNeverBelowOne(t *testing.T) {
	resetBlockingForTest()
	ticksPerMs = 1

	if got := msToTicks(0); got != 1 {
		t.Fatalf("expected minimum of 1 tick; got %d", got)
	}
	ticksPerMs = 100
	if got := msToTicks(5); got != 500 {
		t.Fatalf("expected 500 ticks; got %d", got)
	}
}
