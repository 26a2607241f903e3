package sched

import (
	"duskos/kernel/cpu"
)

// wakeupPending holds ids of tasks that called unblock_task before the
// corresponding block_current_task committed to the Blocked state, per
// spec.md §4.8's lost-wakeup guard.
var wakeupPending = map[uint64]struct{}{}

// ticksPerMs converts milliseconds to timer ticks; wired from outside
// (cmd/kernel sets it once from the tick rate it programs into the APIC
// timer) so kernel/sched does not need to import the timer packages.
var ticksPerMs uint64 = 1

// SetTicksPerMs configures the ms-to-ticks conversion rate used by
// SleepMs.
func SetTicksPerMs(rate uint64) {
	if rate == 0 {
		rate = 1
	}
	ticksPerMs = rate
}

func msToTicks(ms uint32) uint64 {
	ticks := uint64(ms) * ticksPerMs
	if ticks < 1 {
		return 1
	}
	return ticks
}

// registerTimerFn lets tests substitute a fake timer wheel; production
// wiring points it at kernel/timer.RegisterTimer.
var registerTimerFn = func(delayTicks uint64, cb func()) {}

// SetRegisterTimerFn wires SleepMs to a concrete timer wheel (kernel/timer
// in production). Must be called once during boot before any task calls
// SleepMs.
func SetRegisterTimerFn(fn func(delayTicks uint64, cb func())) {
	registerTimerFn = fn
}

// BlockCurrentTask implements spec.md §4.8's block_current_task: under
// interrupt-disable, atomically check wakeup_pending for a pending wake
// (lost-wakeup recovery) before committing to Blocked, then call
// Schedule. Lock order is wakeup_pending -> current_task, both taken
// inside the same critical section.
func BlockCurrentTask() {
	self := currentTask

	var alreadyWoken bool
	cpu.WithoutInterrupts(func() {
		if _, ok := wakeupPending[self.ID]; ok {
			delete(wakeupPending, self.ID)
			alreadyWoken = true
			return
		}
		self.State = Blocked
	})

	if alreadyWoken {
		return
	}

	Schedule()
}

// UnblockTask implements spec.md §4.8's unblock_task: remove id from
// BLOCKED_TASKS and enqueue it Ready if found; otherwise record the wake
// in wakeup_pending so a not-yet-blocked BlockCurrentTask detects it
// before committing to sleep.
func UnblockTask(id uint64) {
	cpu.WithoutInterrupts(func() {
		task, ok := blockedTasks[id]
		if !ok {
			wakeupPending[id] = struct{}{}
			return
		}
		delete(blockedTasks, id)
		task.State = Ready
		enqueueReady(task)
	})
}

// SleepMs implements spec.md §4.8's sleep_ms: register a one-shot timer
// that unblocks the calling task after max(ms_to_ticks(ms), 1) ticks,
// then block. Forbidden from interrupt context; callers running with
// interrupts disabled get a no-op instead of a silent deadlock.
func SleepMs(ms uint32) {
	if IsInterruptContext() {
		return
	}
	if ms == 0 {
		YieldNow()
		return
	}

	self := currentTask
	registerTimerFn(msToTicks(ms), func() { UnblockTask(self.ID) })
	BlockCurrentTask()
}

// IsInterruptContext reports whether RFLAGS.IF is clear, per spec.md
// §4.8. isInterruptContextFn is the mockable indirection over the real
// RFLAGS read, matching the readCR2Fn/outbFn convention used elsewhere.
var isInterruptContextFn = func() bool { return !cpu.InterruptsEnabled() }

func IsInterruptContext() bool {
	return isInterruptContextFn()
}
