package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one of spec.md §8's literal end-to-end scenarios, expressed
// as a YAML fixture so qemurun can drive QEMU without a recompile per
// scenario: the kernel image reads its behavior entirely from BootInfo
// and the command line qemurun assembles below.
type Scenario struct {
	Name string `yaml:"name"`

	MemoryMap   []MemoryRegion `yaml:"memory_map"`
	Framebuffer Framebuffer    `yaml:"framebuffer"`
	RSDP        uint64         `yaml:"rsdp"`

	// CmdLine is appended to the synthesized BootInfo command line the
	// running kernel parses via kernel/cmdline.
	CmdLine string `yaml:"cmdline"`

	Timeout Duration `yaml:"timeout"`

	// ExpectLogLines are substrings that must each appear, in order, in
	// the kernel's serial console output before Timeout elapses.
	ExpectLogLines []string `yaml:"expect_log_lines"`

	// ExpectNoFault fails the scenario if a double-fault or triple-fault
	// marker appears on the serial console.
	ExpectNoFault bool `yaml:"expect_no_fault"`
}

// MemoryRegion mirrors kernel/bootinfo.MemoryRegion's fields, expressed in
// human units (MiB) for readability in fixtures.
type MemoryRegion struct {
	StartPhys uint64 `yaml:"start_phys"`
	SizeMiB   uint64 `yaml:"size_mib"`
	Kind      string `yaml:"kind"`
}

// Framebuffer mirrors kernel/bootinfo.FramebufferInfo.
type Framebuffer struct {
	Base   uint64 `yaml:"base"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
	Stride uint32 `yaml:"stride"`
}

// Duration wraps time.Duration for YAML unmarshaling, grounded on the
// tinyrange-cc test runner's identical pattern.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// LoadScenario reads and validates a scenario fixture.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}

	if s.Timeout == 0 {
		s.Timeout = Duration(5 * time.Second)
	}
	if len(s.MemoryMap) == 0 {
		return nil, fmt.Errorf("scenario %q: memory_map must have at least one region", s.Name)
	}

	return &s, nil
}
