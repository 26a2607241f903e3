// Package sched implements the three-class preemptive scheduler spec.md
// §4.7/§4.8 describes: strict Realtime > Normal > Idle priority, a
// CFS-lite fair queue for Normal tasks, and the block/unblock/wakeup
// protocol that closes the classic lost-wakeup race. Run-queue ordering is
// grounded on the teacher's convention of keeping shared mutable state
// behind package-private globals guarded by kernel/cpu.WithoutInterrupts
// critical sections (mirroring kernel/mem/pmm/allocator's single global
// bootMemAllocator instance), generalized from a single allocator to the
// run-queue/BLOCKED_TASKS state spec.md §3 names.
package sched

import (
	"unsafe"

	"duskos/kernel"
)

// SchedClass is a task's scheduling class. The numeric ordering matches
// spec.md §4.7's strict priority: Realtime > Normal > Idle.
type SchedClass int

const (
	Realtime SchedClass = iota
	Normal
	Idle
)

// State is a task's lifecycle state (spec.md §3).
type State int

const (
	Running State = iota
	Ready
	Blocked
	Terminated
)

// BaseWeight is the reference weight vruntime deltas are scaled against
// (spec.md §4.7).
const BaseWeight = 1024

// StackSize is the size of a task's owned kernel stack (spec.md §3: 16 KiB,
// 16-byte aligned).
const StackSize = 16 * 1024

// prioToWeight is the standard Linux sched_prio_to_weight table, indexed by
// nice+20 (spec.md §4.7 names this table explicitly).
var prioToWeight = [40]uint32{
	/* -20 */ 88761, 71755, 56483, 46273, 36291,
	/* -15 */ 29154, 23254, 18705, 14949, 11916,
	/* -10 */ 9548, 7620, 6100, 4904, 3906,
	/* -5  */ 3121, 2501, 1991, 1586, 1277,
	/* 0   */ 1024, 820, 655, 526, 423,
	/* 5   */ 335, 272, 215, 172, 137,
	/* 10  */ 110, 87, 70, 56, 45,
	/* 15  */ 36, 29, 23, 18, 15,
}

// WeightForNice returns PRIO_TO_WEIGHT[nice+20].
func WeightForNice(nice int) uint32 {
	return prioToWeight[nice+20]
}

var (
	errInvalidPriority       = &kernel.Error{Module: "sched", Message: "invalid priority"}
	errStackAllocationFailed = &kernel.Error{Module: "sched", Message: "stack allocation failed"}
	errInvalidStackAddress   = &kernel.Error{Module: "sched", Message: "invalid stack address"}
	errContextInitFailed     = &kernel.Error{Module: "sched", Message: "context init failed"}
	errQueueFull             = &kernel.Error{Module: "sched", Message: "run queue full"}
)

// Context is a task's saved kernel stack pointer; the switched-out stack
// itself holds the callee-saved registers, RFLAGS (IF forced to 1) and an
// FXSAVE image, per spec.md §3.
type Context struct {
	RSP uintptr
}

// Task is one schedulable kernel-stack-backed unit of execution (spec.md
// §3).
type Task struct {
	ID    uint64
	Name  string
	Class SchedClass

	// Nice is valid only for Normal tasks, in [-20, 19].
	Nice int
	// RTPriority is valid only for Realtime tasks, in [1, 99].
	RTPriority int
	Weight     uint32
	VRuntime   uint64

	Context Context
	State   State

	stack []byte

	// EntryFn is the function the task begins executing at on first
	// dispatch.
	EntryFn func()
}

var nextTaskID uint64

func allocTaskID() uint64 {
	nextTaskID++
	return nextTaskID
}

// NewTask allocates a task's kernel stack and initializes its saved
// context so that its first dispatch begins executing entryFn, per
// spec.md §3's Context layout. class, nice and rtPriority are validated
// against spec.md's ranges.
func NewTask(name string, class SchedClass, nice, rtPriority int, entryFn func()) (*Task, *kernel.Error) {
	switch class {
	case Realtime:
		if rtPriority < 1 || rtPriority > 99 {
			return nil, errInvalidPriority
		}
	case Normal:
		if nice < -20 || nice > 19 {
			return nil, errInvalidPriority
		}
	case Idle:
		// no priority field to validate
	default:
		return nil, errInvalidPriority
	}

	stack := make([]byte, StackSize)
	if stack == nil {
		return nil, errStackAllocationFailed
	}

	t := &Task{
		ID:         allocTaskID(),
		Name:       name,
		Class:      class,
		Nice:       nice,
		RTPriority: rtPriority,
		State:      Ready,
		stack:      stack,
		EntryFn:    entryFn,
	}
	if class == Normal {
		t.Weight = WeightForNice(nice)
	}

	if err := initContext(t); err != nil {
		return nil, err
	}

	return t, nil
}

// initContext prepares the task's stack so that switchContext, on first
// dispatch, pops a frame that lands in a trampoline calling t.EntryFn.
func initContext(t *Task) *kernel.Error {
	if len(t.stack) < 64 {
		return errInvalidStackAddress
	}

	stackTop := uintptr(unsafe.Pointer(&t.stack[0])) + uintptr(len(t.stack))
	t.Context.RSP = stackTop &^ 0xF
	if t.Context.RSP == 0 {
		return errContextInitFailed
	}
	return nil
}
