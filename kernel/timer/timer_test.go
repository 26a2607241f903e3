package timer

import "testing"

func resetForTest() {
	heapLen = 0
	currentTick = 0
	pendingLen = 0
	softirqPending = false
	inSoftirq = false
}

func TestRegisterTimerThenTicksInvokesCallbackOnce(t *testing.T) {
	resetForTest()

	count := 0
	RegisterTimer(3, func() { count++ })

	for i := 0; i < 4; i++ {
		Tick()
		DoSoftirq()
	}

	if count != 1 {
		t.Fatalf("expected callback to run exactly once; got %d", count)
	}
}

func TestTimerDoesNotFireBeforeExpiry(t *testing.T) {
	resetForTest()

	count := 0
	RegisterTimer(5, func() { count++ })

	for i := 0; i < 4; i++ {
		Tick()
		DoSoftirq()
	}

	if count != 0 {
		t.Fatalf("expected callback not to have fired yet; got %d", count)
	}
}

func TestMultipleTimersFireInExpiryOrder(t *testing.T) {
	resetForTest()

	var order []int
	RegisterTimer(3, func() { order = append(order, 3) })
	RegisterTimer(1, func() { order = append(order, 1) })
	RegisterTimer(2, func() { order = append(order, 2) })

	for i := 0; i < 3; i++ {
		Tick()
		DoSoftirq()
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected timers to fire in expiry order [1 2 3]; got %v", order)
	}
}

func TestTimersAtSameTickAllFire(t *testing.T) {
	resetForTest()

	fired := 0
	RegisterTimer(2, func() { fired++ })
	RegisterTimer(2, func() { fired++ })
	RegisterTimer(2, func() { fired++ })

	Tick()
	Tick()
	DoSoftirq()

	if fired != 3 {
		t.Fatalf("expected all 3 same-tick timers to fire; got %d", fired)
	}
}

func TestDoSoftirqReentranceGuardPreventsNestedDrain(t *testing.T) {
	resetForTest()

	var nestedRan bool
	RegisterTimer(1, func() {
		DoSoftirq() // should be a no-op: inSoftirq is already true
		nestedRan = true
	})

	Tick()
	DoSoftirq()

	if !nestedRan {
		t.Fatal("expected the outer callback to still run")
	}
}

func TestCurrentTickAdvancesOnce(t *testing.T) {
	resetForTest()
	Tick()
	Tick()
	if CurrentTick() != 2 {
		t.Fatalf("expected tick 2; got %d", CurrentTick())
	}
}
