// Package kernel contains the core types shared by every kernel subsystem:
// the allocation-free error type and the memory helpers used before the
// slab heap is available. Panic handling lives in kernel/kfmt (Panic),
// which depends on this package for Error rather than the reverse.
package kernel

// Error describes a kernel error. All kernel errors are defined as global
// variables that are pointers to this structure. This requirement stems from
// the fact that many call sites run before the slab heap is initialized, so
// errors.New (which allocates) cannot be used.
type Error struct {
	// Module is the subsystem that raised the error (e.g. "paging", "apic").
	Module string

	// Message is a short, human-readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
