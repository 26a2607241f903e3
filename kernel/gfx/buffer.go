package gfx

import "duskos/kernel/sync"

// SharedBuffer is the handle register_writer returns (spec.md §4.9): a
// per-task drawing surface whose hot-path writes accumulate in a local,
// lock-free batch. flush() is the only operation that touches the lock.
type SharedBuffer struct {
	Region Region

	mu        sync.BlockingMutex
	committed []DrawCommand
	dirty     bool

	local []DrawCommand
}

// newSharedBuffer constructs a writer buffer for the given region.
// Unexported: writers are only obtained through Compositor.RegisterWriter.
func newSharedBuffer(region Region) *SharedBuffer {
	return &SharedBuffer{Region: region}
}

// Clear appends a CmdClear to the local batch.
func (b *SharedBuffer) Clear(fill Color) {
	b.local = append(b.local, DrawCommand{Kind: CmdClear, Color: fill})
}

// FillRect appends a CmdFillRect, in region-local pixel coordinates.
func (b *SharedBuffer) FillRect(rect Region, fill Color) {
	b.local = append(b.local, DrawCommand{Kind: CmdFillRect, Rect: rect, Color: fill})
}

// DrawChar appends a CmdDrawChar at the given glyph cell.
func (b *SharedBuffer) DrawChar(row, col int, ch byte, fg Color) {
	b.local = append(b.local, DrawCommand{Kind: CmdDrawChar, Row: row, Col: col, Ch: ch, Color: fg})
}

// DrawString appends a CmdDrawString starting at the given glyph cell.
func (b *SharedBuffer) DrawString(row, col int, text string, fg Color) {
	b.local = append(b.local, DrawCommand{Kind: CmdDrawString, Row: row, Col: col, Text: text, Color: fg})
}

// Flush takes the lock once, appends the coalesced local batch to the
// committed queue, and marks the buffer dirty for the compositor (spec.md
// §4.9: "flush() takes the lock once and appends the local batch,
// coalescing consecutive DrawChar at the same row into a single
// DrawString").
func (b *SharedBuffer) Flush() {
	if len(b.local) == 0 {
		return
	}
	batch := coalesce(b.local)
	b.local = b.local[:0]

	b.mu.Lock()
	b.committed = append(b.committed, batch...)
	b.dirty = true
	b.mu.Unlock()
}

// takeIfDirty try_locks the buffer (spec.md §4.9 step ii: "for each
// buffer, try_locks it, and if dirty, replays its commands"). It returns
// the committed command queue and true only when the lock was acquired
// and the buffer was dirty; the committed queue is drained and the dirty
// flag cleared in that case.
func (b *SharedBuffer) takeIfDirty() ([]DrawCommand, bool) {
	if !b.mu.TryLock() {
		return nil, false
	}
	defer b.mu.Unlock()

	if !b.dirty {
		return nil, false
	}
	cmds := b.committed
	b.committed = nil
	b.dirty = false
	return cmds, true
}
