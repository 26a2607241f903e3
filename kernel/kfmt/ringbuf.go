package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that backs Printf
// before SetOutputSink has been called. duskos never brings up a VGA-style
// text console (the compositor, kernel/gfx, owns the only display surface,
// spec.md §4.9), so unlike the teacher this buffer isn't just a bridge until
// boot reaches a known console init step: it is the sole record of every
// Printf/klog line for as long as nothing has registered a sink, which for
// most subsystems is the entire run. 2048 bytes keeps a few dozen lines of
// boot diagnostics around for Writer() callers (kernel/trap's fault dumps)
// without needing the slab heap, which may not exist yet. Must stay a power
// of 2 for the wraparound mask below.
const ringBufferSize = 2048

// ringBuffer models a ring buffer of size ringBufferSize. Reachable from
// outside this package only through Writer(), which returns it whenever no
// OutputSink has been set.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns the number of bytes read (0
// <= n <= len(p)) and any error encountered.
func (rb *ringBuffer) Read(p []byte) (n int, err error) {
	switch {
	case rb.rIndex < rb.wIndex:
		// read up to min(wIndex - rIndex, len(p)) bytes
		n = rb.wIndex - rb.rIndex
		if pLen := len(p); pLen < n {
			n = pLen
		}

		copy(p, rb.buffer[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n

		return n, nil
	case rb.rIndex > rb.wIndex:
		// Read up to min(len(buf) - rIndex, len(p)) bytes
		n = len(rb.buffer) - rb.rIndex
		if pLen := len(p); pLen < n {
			n = pLen
		}

		copy(p, rb.buffer[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n

		if rb.rIndex == len(rb.buffer) {
			rb.rIndex = 0
		}

		return n, nil
	default: // rIndex == wIndex
		return 0, io.EOF
	}
}
