package klog

import (
	"bytes"
	"duskos/kernel/kfmt"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	defer SetLevel(Info)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	SetLevel(Warn)
	Infof("sched", "task %d created", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected Info line to be filtered out, got %q", buf.String())
	}

	Warnf("sched", "timer queue at %d%%", 90)
	if got := buf.String(); !strings.Contains(got, "[WARN] sched: timer queue at 90%") {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestInfof(t *testing.T) {
	defer SetLevel(Info)
	SetLevel(Debug)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	Infof("apic", "calibrated at %d hz", 1000000)
	if got := buf.String(); got != "[INFO] apic: calibrated at 1000000 hz\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}
