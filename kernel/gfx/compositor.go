package gfx

import (
	"sync/atomic"

	"duskos/kernel/cpu"
	"duskos/kernel/gfx/font"
	"duskos/kernel/sched"
)

// framePeriodMs is the compositor's sleep between passes, producing
// "tear-free 60-Hz output" per spec.md §4.9.
const framePeriodMs = 16

// Compositor owns the registered writer list and the shadow/hardware
// framebuffer pair. It is meant to be driven by a single Realtime-class
// task calling Run in a loop.
type Compositor struct {
	fb     *HardwareFramebuffer
	shadow *ShadowBuffer

	// writers is swapped under a brief interrupt-disabled critical
	// section on every RegisterWriter, giving register_writer
	// copy-on-write semantics (spec.md §4.9: "the writer list uses
	// copy-on-write on register_writer") without a lock on the
	// compositor's per-pass read path.
	writers []*SharedBuffer

	frameCount uint64
}

// NewCompositor constructs a compositor bound to the given hardware
// framebuffer, using glyphs for any CmdDrawChar/CmdDrawString replay.
func NewCompositor(fb *HardwareFramebuffer, glyphs *font.Font) *Compositor {
	if glyphs == nil {
		glyphs = font.Default
	}
	return &Compositor{
		fb:     fb,
		shadow: NewShadowBuffer(fb.Width, fb.Height, glyphs),
	}
}

// RegisterWriter allocates a SharedBuffer bound to region and adds it to
// the writer list by cloning and replacing the slice under
// WithoutInterrupts, per spec.md §4.9's per-task writer registration.
func (c *Compositor) RegisterWriter(region Region) *SharedBuffer {
	buf := newSharedBuffer(region)
	cpu.WithoutInterrupts(func() {
		next := make([]*SharedBuffer, len(c.writers)+1)
		copy(next, c.writers)
		next[len(c.writers)] = buf
		c.writers = next
	})
	return buf
}

// snapshotWriters clones the current writer-list pointer under a brief
// interrupt-disabled critical section, per spec.md §4.9 step i.
func (c *Compositor) snapshotWriters() []*SharedBuffer {
	var snap []*SharedBuffer
	cpu.WithoutInterrupts(func() { snap = c.writers })
	return snap
}

// RunPass executes one compositor pass: snapshot writers, replay each
// dirty buffer into the shadow framebuffer, then blit the accumulated
// dirty rectangle to hardware row-by-row (spec.md §4.9 steps i-iii). It
// does not sleep; Run wraps it with the ~16ms cadence.
func (c *Compositor) RunPass() {
	atomic.AddUint64(&c.frameCount, 1)

	for _, w := range c.snapshotWriters() {
		if cmds, ok := w.takeIfDirty(); ok {
			c.shadow.Replay(w.Region, cmds)
		}
	}

	dirty := c.shadow.DirtyRegion()
	if dirty.Empty() {
		return
	}
	for y := dirty.Y; y < dirty.Y+dirty.H; y++ {
		c.fb.BlitRow(y, dirty.X, dirty.X+dirty.W, c.shadow.Row(y))
	}
	c.shadow.ResetDirty()
}

// FrameCount returns the number of compositor passes run so far, for the
// debug overlay's FPS calculation.
func (c *Compositor) FrameCount() uint64 {
	return atomic.LoadUint64(&c.frameCount)
}

// Run drives the compositor forever: RunPass then sleep ~16ms, per
// spec.md §4.9 step iv. Intended as the entry function of a
// Realtime-class task (spec.md §4.9: "Compositor task runs at Realtime
// priority").
func (c *Compositor) Run() {
	for {
		c.RunPass()
		sched.SleepMs(framePeriodMs)
	}
}
