package sched

import (
	"github.com/google/btree"

	"duskos/kernel/cpu"
)

// rtKey orders RT_QUEUE by (255-rt_priority, task_id): highest rt_priority
// dispatches first, lowest id breaks ties, per spec.md §3.
type rtKey struct {
	inversePriority uint8
	taskID          uint64
}

func rtKeyFor(t *Task) rtKey {
	return rtKey{inversePriority: uint8(255 - t.RTPriority), taskID: t.ID}
}

func lessRTKey(a, b rtKey) bool {
	if a.inversePriority != b.inversePriority {
		return a.inversePriority < b.inversePriority
	}
	return a.taskID < b.taskID
}

// cfsKey orders CFS_QUEUE by (vruntime, task_id): smallest vruntime
// dispatches first, per spec.md §3/§4.7.
type cfsKey struct {
	vruntime uint64
	taskID   uint64
}

func cfsKeyFor(t *Task) cfsKey {
	return cfsKey{vruntime: t.VRuntime, taskID: t.ID}
}

func lessCFSKey(a, b cfsKey) bool {
	if a.vruntime != b.vruntime {
		return a.vruntime < b.vruntime
	}
	return a.taskID < b.taskID
}

const btreeDegree = 32

var (
	rtQueue  = btree.NewG(btreeDegree, func(a, b rtKeyedTask) bool { return lessRTKey(a.key, b.key) })
	cfsQueue = btree.NewG(btreeDegree, func(a, b cfsKeyedTask) bool { return lessCFSKey(a.key, b.key) })

	idleQueue []*Task

	blockedTasks = map[uint64]*Task{}
)

type rtKeyedTask struct {
	key  rtKey
	task *Task
}

type cfsKeyedTask struct {
	key  cfsKey
	task *Task
}

// enqueueRT inserts t into RT_QUEUE. Must be called under
// cpu.WithoutInterrupts by the caller (spec.md §4.7's lock-ordering rule:
// acquire and immediately drop each run-queue lock in isolation).
func enqueueRT(t *Task) {
	rtQueue.ReplaceOrInsert(rtKeyedTask{key: rtKeyFor(t), task: t})
}

// enqueueCFS inserts t into CFS_QUEUE.
func enqueueCFS(t *Task) {
	cfsQueue.ReplaceOrInsert(cfsKeyedTask{key: cfsKeyFor(t), task: t})
}

// enqueueIdle appends t to the FIFO IDLE_QUEUE.
func enqueueIdle(t *Task) {
	idleQueue = append(idleQueue, t)
}

// enqueueReady places t onto the run queue matching its class, per
// spec.md §4.7's step 3 ("moves the outgoing task to the correct
// destination").
func enqueueReady(t *Task) {
	switch t.Class {
	case Realtime:
		enqueueRT(t)
	case Normal:
		enqueueCFS(t)
	default:
		enqueueIdle(t)
	}
}

// popHighestRT removes and returns the RT_QUEUE's highest-priority task, or
// nil if RT_QUEUE is empty.
func popHighestRT() *Task {
	var result *Task
	rtQueue.Ascend(func(item rtKeyedTask) bool {
		result = item.task
		return false
	})
	if result != nil {
		rtQueue.Delete(rtKeyedTask{key: rtKeyFor(result)})
	}
	return result
}

// popSmallestVRuntime removes and returns the CFS_QUEUE's smallest-vruntime
// task, or nil if CFS_QUEUE is empty.
func popSmallestVRuntime() *Task {
	var result *Task
	cfsQueue.Ascend(func(item cfsKeyedTask) bool {
		result = item.task
		return false
	})
	if result != nil {
		cfsQueue.Delete(cfsKeyedTask{key: cfsKeyFor(result)})
	}
	return result
}

// popIdle removes and returns the head of IDLE_QUEUE, or nil if empty.
func popIdle() *Task {
	if len(idleQueue) == 0 {
		return nil
	}
	t := idleQueue[0]
	idleQueue = idleQueue[1:]
	return t
}

// pickNext implements spec.md §4.7's priority rule: RT_QUEUE first, then
// CFS_QUEUE, then IDLE_QUEUE. Each run-queue's lock is acquired and
// immediately dropped in isolation (RT -> CFS -> Idle), per the lock
// ordering rule; no two are held simultaneously.
func pickNext() *Task {
	var next *Task

	cpu.WithoutInterrupts(func() { next = popHighestRT() })
	if next != nil {
		return next
	}

	cpu.WithoutInterrupts(func() { next = popSmallestVRuntime() })
	if next != nil {
		return next
	}

	cpu.WithoutInterrupts(func() { next = popIdle() })
	return next
}

// queueDepths reports each run queue's size, for the debug overlay's
// scheduler statistics (spec.md §5's supplemented debug overlay).
func queueDepths() (rt, cfs, idleN, blocked int) {
	cpu.WithoutInterrupts(func() {
		rt = rtQueue.Len()
		cfs = cfsQueue.Len()
		idleN = len(idleQueue)
		blocked = len(blockedTasks)
	})
	return
}
