package sched

import (
	"sync/atomic"

	"duskos/kernel/cpu"
)

// accumulatedRuntime accrues ticks (or other time units the caller feeds
// via AccumulateRuntime) since the last scheduling decision; it is an
// atomic per spec.md §5 ("ACCUMULATED_RUNTIME ... are atomics").
var accumulatedRuntime uint64

// needResched is set by the timer ISR and consumed by
// CheckReschedOnInterruptExit, per spec.md §4.7's preemption protocol.
var needResched uint32

var currentTask *Task

// switchContextFn performs the actual stack-pointer swap (push callee-saved
// regs + RFLAGS + FXSAVE, save old RSP, load new RSP, restore, ret). The
// switchContext it points at has no Go body, and its amd64 assembly
// implementation is not part of this tree; tests substitute a fake that just copies RSP so the surrounding scheduling
// logic can be exercised without a real task entry trampoline.
var switchContextFn = switchContext

// switchContext is the asm-declared function production code links
// against.
func switchContext(old, new *Context)

// AccumulateRuntime adds delta to ACCUMULATED_RUNTIME; the timer ISR calls
// this once per tick.
func AccumulateRuntime(delta uint64) {
	atomic.AddUint64(&accumulatedRuntime, delta)
}

// RequestResched sets need_resched, per spec.md §4.7 step 1.
func RequestResched() {
	atomic.StoreUint32(&needResched, 1)
}

// CheckReschedOnInterruptExit drains the softirq queue, then calls
// Schedule if need_resched is set, per spec.md §4.7 step 2. softirqDrainFn
// is passed in rather than imported directly so kernel/sched does not need
// to depend on kernel/timer's concrete package (keeps the scheduler
// testable without pulling in the timer wheel).
func CheckReschedOnInterruptExit(softirqDrainFn func()) {
	softirqDrainFn()

	if atomic.CompareAndSwapUint32(&needResched, 1, 0) {
		Schedule()
	}
}

// takeAccumulatedDelta swaps ACCUMULATED_RUNTIME to 0 and returns the prior
// value, substituting 1 if it was 0 to guarantee monotonic vruntime
// ordering among identical vruntimes (spec.md §4.7).
func takeAccumulatedDelta() uint64 {
	delta := atomic.SwapUint64(&accumulatedRuntime, 0)
	if delta == 0 {
		return 1
	}
	return delta
}

// Schedule implements spec.md §4.7 step 3: pick the next task, move the
// outgoing task to its destination queue, then switch_context. Callers
// (the timer ISR's resched check, yield_now, block_current_task,
// sleep_ms) are all documented preemption points.
func Schedule() {
	cpu.DisableInterrupts()

	delta := takeAccumulatedDelta()

	outgoing := currentTask
	if outgoing != nil && outgoing.Class == Normal {
		outgoing.VRuntime += delta * BaseWeight / uint64(outgoing.Weight)
	}

	next := pickNext()
	if next == nil {
		// Nothing runnable; stay on the current task (the idle task is
		// expected to always be present once Init has run).
		cpu.EnableInterrupts()
		return
	}

	if outgoing != nil && outgoing != next {
		switch outgoing.State {
		case Running, Ready:
			outgoing.State = Ready
			cpu.WithoutInterrupts(func() { enqueueReady(outgoing) })
		case Blocked:
			cpu.WithoutInterrupts(func() { blockedTasks[outgoing.ID] = outgoing })
		case Terminated:
			// dropped: not re-enqueued anywhere.
		}
	}

	var oldCtx *Context
	if outgoing != nil {
		oldCtx = &outgoing.Context
	} else {
		oldCtx = &Context{}
	}

	next.State = Running
	currentTask = next

	switchContextFn(oldCtx, &next.Context)
}

// CurrentTask returns the task currently marked Running, or nil before
// Init's first Schedule call.
func CurrentTask() *Task {
	var t *Task
	cpu.WithoutInterrupts(func() { t = currentTask })
	return t
}

// YieldNow voluntarily gives up the CPU, a documented preemption point
// (spec.md §5).
func YieldNow() {
	RequestResched()
	Schedule()
}

// Init registers a task as the current task without going through
// Schedule, used once at boot to seed currentTask before the first real
// scheduling decision (spec.md §2's control flow: "create tasks then call
// schedule()").
func Init(initial *Task) {
	initial.State = Running
	currentTask = initial
}

// Spawn admits a newly created task into its class's run queue, for
// callers registering additional Ready tasks (e.g. the compositor, the
// debug overlay) after Init has already seeded the first running task.
// Task.State is already Ready from NewTask; Spawn only makes the task
// visible to Schedule's dispatch.
func Spawn(t *Task) {
	cpu.WithoutInterrupts(func() { enqueueReady(t) })
}

// QueueDepths exposes each run queue's size for the debug overlay.
func QueueDepths() (rt, cfs, idle, blocked int) {
	return queueDepths()
}
