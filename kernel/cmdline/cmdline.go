// Package cmdline parses the boot command line string that the bootloader
// copies into BootInfo. It generalizes the teacher's
// multiboot.GetBootCmdLine tag scan into a standalone parser that both the
// boot package (while still in firmware context) and the running kernel can
// use without re-reading firmware-owned structures.
package cmdline

import "strings"

// Options is the parsed view of the boot command line. Unknown keys are
// preserved in Raw so that subsystems added later do not require a cmdline
// package change.
type Options struct {
	// Verbose raises the klog minimum level to Debug.
	Verbose bool

	// Quiet suppresses all but Warn/Fatal log lines.
	Quiet bool

	// SchedHz requests an APIC timer tick rate other than the default
	// 1000 Hz. Zero means "use the default".
	SchedHz int

	// CompositorHz requests a compositor refresh rate other than the
	// default 60 Hz. Zero means "use the default".
	CompositorHz int

	// DebugOverlay enables the scheduler/heap statistics overlay writer.
	DebugOverlay bool

	// Raw holds every key=value pair found on the command line, including
	// ones already interpreted above.
	Raw map[string]string
}

// Parse splits a space-separated "key=value key2=value2" command line (the
// format BootInfo carries) into an Options value. Keys without a value
// (bare flags) are stored in Raw with an empty value and, for the
// recognized boolean flags, set the corresponding field.
func Parse(line string) Options {
	opts := Options{Raw: make(map[string]string)}

	for _, field := range strings.Fields(line) {
		key, value, _ := strings.Cut(field, "=")
		opts.Raw[key] = value

		switch key {
		case "verbose":
			opts.Verbose = value != "false"
		case "quiet":
			opts.Quiet = value != "false"
		case "schedHz":
			opts.SchedHz = atoiDefault(value, 0)
		case "compositorHz":
			opts.CompositorHz = atoiDefault(value, 0)
		case "debugOverlay":
			opts.DebugOverlay = value != "false"
		}
	}

	return opts
}

// atoiDefault parses a small non-negative decimal integer, returning def on
// any malformed input. A hand-rolled parser is used instead of strconv.Atoi
// since this code can run before the slab heap exists and strconv.Atoi's
// error path allocates.
func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}

	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}
