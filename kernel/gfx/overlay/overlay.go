// Package overlay implements a debug overlay writer: a compositor client
// that renders scheduler and heap statistics into the screen's corner
// once a second. Grounded on original_source/kernel/src/debug_overlay.rs
// (a debug_overlay_task that registers a writer, clears, and writes FPS
// and uptime lines on a 1-second sleep_ms cadence), expressed with
// kernel/gfx's Go writer API instead of a Write-trait TaskWriter.
package overlay

import (
	"duskos/kernel/gfx"
	"duskos/kernel/kfmt"
	"duskos/kernel/mm/slab"
	"duskos/kernel/sched"
)

const (
	width  = 160
	height = 80
	margin = 10

	updateIntervalMs = 1000

	textColor = gfx.Color(0xFFFFFF)
	bgColor   = gfx.Color(0x000000)
)

// FrameCounter is satisfied by kernel/gfx.Compositor; an interface so this
// package does not need to import the concrete compositor type for what
// is otherwise a read-only stats source.
type FrameCounter interface {
	FrameCount() uint64
}

// Overlay is a Realtime-class writer task rendering "vitrOS Debug"-style
// stats into the top-right corner of the screen.
type Overlay struct {
	buf    *gfx.SharedBuffer
	frames FrameCounter
	nowMs  func() uint64

	scratch lineBuffer
}

// lineBuffer is a reusable io.Writer target for kfmt.Fprintf, avoiding a
// fresh allocation for every formatted line the overlay renders.
type lineBuffer struct {
	buf []byte
}

func (l *lineBuffer) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	return len(p), nil
}

func (l *lineBuffer) String() string {
	return string(l.buf)
}

func (l *lineBuffer) Reset() {
	l.buf = l.buf[:0]
}

// New registers a writer for the overlay region (screenWidth, screenHeight
// describe the compositor's hardware framebuffer) and returns an Overlay
// ready to Run as a task entry function.
func New(c *gfx.Compositor, screenWidth, screenHeight int, frames FrameCounter, nowMs func() uint64) *Overlay {
	region := gfx.Region{
		X: screenWidth - width - margin,
		Y: margin,
		W: width,
		H: height,
	}
	return &Overlay{
		buf:    c.RegisterWriter(region),
		frames: frames,
		nowMs:  nowMs,
	}
}

// Run renders one stats frame per second forever; intended as a Realtime
// task entry function alongside the compositor itself.
func (o *Overlay) Run() {
	var lastTimeMs, lastFrames uint64

	for {
		nowMs := o.nowMs()
		frames := o.frames.FrameCount()

		deltaMs := nowMs - lastTimeMs
		deltaFrames := frames - lastFrames
		fps := uint64(0)
		if deltaMs > 0 {
			fps = deltaFrames * 1000 / deltaMs
		}

		o.renderFrame(nowMs/1000, fps)

		lastTimeMs, lastFrames = nowMs, frames
		sched.SleepMs(updateIntervalMs)
	}
}

func (o *Overlay) renderFrame(uptimeSecs, fps uint64) {
	rt, cfs, idle, blocked := sched.QueueDepths()
	stats := slab.Snapshot()

	o.buf.Clear(bgColor)
	row := 0
	o.writeLine(row, "duskos debug")
	row++
	o.writeLine(row, "------------")
	row++
	o.writeLinef(row, "fps: %d  up: %ds", fps, uptimeSecs)
	row++
	o.writeLinef(row, "rt:%d cfs:%d idle:%d blk:%d", rt, cfs, idle, blocked)
	row++
	o.writeLinef(row, "slab allocs:%d frees:%d", stats.Allocs, stats.Frees)
	row++
	o.writeLinef(row, "slab bump:%d", stats.BumpAllocs)
	o.buf.Flush()
}

func (o *Overlay) writeLine(row int, text string) {
	o.buf.DrawString(row, 0, text, textColor)
}

func (o *Overlay) writeLinef(row int, format string, args ...interface{}) {
	o.scratch.Reset()
	kfmt.Fprintf(&o.scratch, format, args...)
	o.buf.DrawString(row, 0, o.scratch.String(), textColor)
}
