package sched

import (
	"sync/atomic"
	"testing"
)

// fakeSwitchContext stands in for the real asm context switch: it just
// records which contexts were passed, so Schedule's surrounding logic
// (vruntime accounting, queue placement) can be exercised without a real
// task entry trampoline.
func fakeSwitchContext(calls *[][2]*Context) func(old, new *Context) {
	return func(old, new *Context) {
		*calls = append(*calls, [2]*Context{old, new})
	}
}

func resetScheduleForTest() {
	resetQueuesForTest()
	atomic.StoreUint64(&accumulatedRuntime, 0)
	atomic.StoreUint32(&needResched, 0)
	currentTask = nil
	switchContextFn = switchContext
}

func TestScheduleSwitchesToHighestPriorityTask(t *testing.T) {
	resetScheduleForTest()

	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	idleTask := mustTask(t, "idle", Idle, 0, 0)
	Init(idleTask)

	rt := mustTask(t, "rt", Realtime, 0, 50)
	enqueueReady(rt)

	Schedule()

	if currentTask != rt {
		t.Fatalf("expected rt task to become current; got %v", currentTask)
	}
	if rt.State != Running {
		t.Fatalf("expected rt task state Running; got %v", rt.State)
	}
	if idleTask.State != Ready {
		t.Fatalf("expected outgoing idle task to be re-enqueued Ready; got %v", idleTask.State)
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one context switch; got %d", len(calls))
	}
}

func TestScheduleAccruesVRuntimeForOutgoingNormalTask(t *testing.T) {
	resetScheduleForTest()
	switchContextFn = fakeSwitchContext(&[][2]*Context{})

	normal := mustTask(t, "normal", Normal, 0, 0) // nice 0 -> weight 1024 == BaseWeight
	Init(normal)
	atomic.StoreUint64(&accumulatedRuntime, 500)

	idle := mustTask(t, "idle", Idle, 0, 0)
	enqueueReady(idle)

	Schedule()

	if normal.VRuntime != 500 {
		t.Fatalf("expected vruntime to accrue delta*BaseWeight/weight = 500 for nice-0 task; got %d", normal.VRuntime)
	}
}

func TestScheduleSubstitutesOneWhenAccumulatedRuntimeIsZero(t *testing.T) {
	resetScheduleForTest()
	switchContextFn = fakeSwitchContext(&[][2]*Context{})

	normal := mustTask(t, "normal", Normal, 0, 0)
	Init(normal)

	idle := mustTask(t, "idle", Idle, 0, 0)
	enqueueReady(idle)

	Schedule()

	if normal.VRuntime != 1 {
		t.Fatalf("expected vruntime to advance by the substituted delta of 1; got %d", normal.VRuntime)
	}
}

func TestScheduleWithNothingRunnableKeepsCurrentTask(t *testing.T) {
	resetScheduleForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	only := mustTask(t, "only", Idle, 0, 0)
	Init(only)

	Schedule()

	if currentTask != only {
		t.Fatal("expected current task to remain unchanged when no other task is runnable")
	}
	if len(calls) != 0 {
		t.Fatal("expected no context switch when nothing else is runnable")
	}
}

func TestCheckReschedOnInterruptExitOnlySchedulesWhenRequested(t *testing.T) {
	resetScheduleForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	idle := mustTask(t, "idle", Idle, 0, 0)
	Init(idle)
	other := mustTask(t, "other", Idle, 0, 0)
	enqueueReady(other)

	drained := false
	CheckReschedOnInterruptExit(func() { drained = true })

	if !drained {
		t.Fatal("expected softirq drain callback to run")
	}
	if len(calls) != 0 {
		t.Fatal("expected no reschedule when need_resched was not set")
	}

	RequestResched()
	CheckReschedOnInterruptExit(func() {})

	if len(calls) != 1 {
		t.Fatalf("expected exactly one reschedule after RequestResched; got %d", len(calls))
	}
}

func TestYieldNowForcesReschedule(t *testing.T) {
	resetScheduleForTest()
	var calls [][2]*Context
	switchContextFn = fakeSwitchContext(&calls)

	current := mustTask(t, "current", Idle, 0, 0)
	Init(current)
	other := mustTask(t, "other", Idle, 0, 0)
	enqueueReady(other)

	YieldNow()

	if len(calls) != 1 {
		t.Fatalf("expected YieldNow to trigger exactly one context switch; got %d", len(calls))
	}
	if currentTask != other {
		t.Fatal("expected the other ready task to become current")
	}
}
