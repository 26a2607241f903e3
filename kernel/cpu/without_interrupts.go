package cpu

// WithoutInterrupts runs fn with maskable interrupts disabled and restores
// the prior RFLAGS.IF state on return, including when fn panics. This is the
// only sanctioned way to open a critical section against interrupt handlers;
// every spin lock that an ISR can also acquire (run-queues, BLOCKED_TASKS,
// the timer heap, wakeup_pending) must be acquired through it.
func WithoutInterrupts(fn func()) {
	wasEnabled := InterruptsEnabled()
	DisableInterrupts()
	defer func() {
		if wasEnabled {
			EnableInterrupts()
		}
	}()
	fn()
}
