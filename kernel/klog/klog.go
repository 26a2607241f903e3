// Package klog implements a small structured logger on top of kernel/kfmt.
// Every line is tagged with a subsystem name and a level and mirrored to
// whatever sink kfmt currently has active (the early ring buffer until
// something registers a sink with kfmt.SetOutputSink).
package klog

import "duskos/kernel/kfmt"

// Level identifies the severity of a log line.
type Level uint8

const (
	// Debug is for high-volume, developer-facing detail (tick accounting,
	// run-queue transitions).
	Debug Level = iota

	// Info is for one-shot lifecycle events (subsystem initialized, task
	// created).
	Info

	// Warn is for recoverable anomalies (calibration retried, timer queue
	// nearly full).
	Warn

	// Fatal is for unrecoverable conditions. Logging at this level halts
	// the CPU via kfmt.Panic after the line is emitted.
	Fatal
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Fatal:
		return "FATAL"
	default:
		return "?"
	}
}

// minLevel gates which levels are actually emitted; defaults to Info so that
// Debug-level tick/scheduler chatter doesn't flood the ring buffer unless a
// caller opts in (e.g. via the cmdline "verbose" flag).
var minLevel = Info

// SetLevel changes the minimum level that will be emitted.
func SetLevel(l Level) { minLevel = l }

// log formats and emits a single line: "[LEVEL] subsystem: message".
func log(l Level, subsystem, format string, args ...interface{}) {
	if l < minLevel {
		return
	}

	kfmt.Printf("[%s] %s: ", l.String(), subsystem)
	kfmt.Printf(format, args...)
	kfmt.Printf("\n")

	if l == Fatal {
		kfmt.Printf("%s", subsystem)
	}
}

// Debugf logs a Debug-level line for the given subsystem.
func Debugf(subsystem, format string, args ...interface{}) { log(Debug, subsystem, format, args...) }

// Infof logs an Info-level line for the given subsystem.
func Infof(subsystem, format string, args ...interface{}) { log(Info, subsystem, format, args...) }

// Warnf logs a Warn-level line for the given subsystem.
func Warnf(subsystem, format string, args ...interface{}) { log(Warn, subsystem, format, args...) }

// Fatalf logs a Fatal-level line for the given subsystem and then halts the
// CPU via kfmt.Panic. It never returns.
func Fatalf(subsystem, format string, args ...interface{}) {
	kfmt.Printf("[%s] %s: ", Fatal.String(), subsystem)
	kfmt.Printf(format, args...)
	kfmt.Printf("\n")
	kfmt.Panic(subsystem + ": " + format)
}
