// Command qemurun drives QEMU through one of spec.md §8's end-to-end
// scenarios: it boots a built kernel image with a synthesized command
// line, captures the serial console through a PTY, and checks the
// scenario's expected log lines and fault-freedom within its timeout.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[qemurun] error: %s\n", err.Error())
	os.Exit(1)
}

// buildCmdLine flattens a scenario's memory map and framebuffer geometry
// into key=value pairs for QEMU's -append, followed by the scenario's own
// CmdLine. kernel/cmdline.Parse has no fields for the fb.*, rsdp or mem.*
// keys (they only land in Options.Raw); the kernel takes the framebuffer,
// RSDP and memory map from BootInfo.
func buildCmdLine(s *Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "fb.base=%#x fb.width=%d fb.height=%d fb.stride=%d rsdp=%#x",
		s.Framebuffer.Base, s.Framebuffer.Width, s.Framebuffer.Height, s.Framebuffer.Stride, s.RSDP)
	for i, r := range s.MemoryMap {
		fmt.Fprintf(&b, " mem.%d=%#x:%dM:%s", i, r.StartPhys, r.SizeMiB, r.Kind)
	}
	if s.CmdLine != "" {
		b.WriteByte(' ')
		b.WriteString(s.CmdLine)
	}
	return b.String()
}

func qemuArgs(kernelImage string, s *Scenario, slavePath string) []string {
	var totalMiB uint64
	for _, r := range s.MemoryMap {
		totalMiB += r.SizeMiB
	}
	if totalMiB == 0 {
		totalMiB = 512
	}

	return []string{
		"-machine", "q35",
		"-m", fmt.Sprintf("%dM", totalMiB),
		"-cpu", "qemu64",
		"-bios", "OVMF.fd",
		"-kernel", kernelImage,
		"-append", buildCmdLine(s),
		"-serial", fmt.Sprintf("file:%s", slavePath),
		"-display", "none",
		"-no-reboot",
		"-no-shutdown",
	}
}

var errFaultDetected = errors.New("fault marker observed on serial console")

func runScenario(kernelImage string, s *Scenario) error {
	pty, err := openSerialPty()
	if err != nil {
		return err
	}
	defer pty.Close()

	cmd := exec.Command("qemu-system-x86_64", qemuArgs(kernelImage, s, pty.slave.Name())...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch qemu: %w", err)
	}
	defer cmd.Process.Kill()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := time.After(s.Timeout.Duration())
	remaining := s.ExpectLogLines
	scanner := bufio.NewScanner(pty.master)

	lineCh := make(chan string)
	go func() {
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
		close(lineCh)
	}()

	for len(remaining) > 0 {
		select {
		case line, ok := <-lineCh:
			if !ok {
				return fmt.Errorf("serial console closed before all expected lines appeared; still waiting for %v", remaining)
			}
			if s.ExpectNoFault && (strings.Contains(line, "double fault") || strings.Contains(line, "triple fault")) {
				return errFaultDetected
			}
			if strings.Contains(line, remaining[0]) {
				remaining = remaining[1:]
			}
		case <-deadline:
			return fmt.Errorf("timed out after %s waiting for %v", s.Timeout.Duration(), remaining)
		case err := <-done:
			if err != nil {
				return fmt.Errorf("qemu exited early: %w (stderr: %s)", err, stderr.String())
			}
			return fmt.Errorf("qemu exited before all expected lines appeared; still waiting for %v", remaining)
		}
	}

	return nil
}

func runTool() error {
	kernelImage := flag.String("kernel", "", "path to the built kernel image")
	scenarioPath := flag.String("scenario", "", "path to a scenario YAML fixture")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "qemurun: boot a kernel image under QEMU and check an end-to-end scenario\n\n")
		fmt.Fprint(os.Stderr, "Usage: qemurun -kernel <image> -scenario <scenario.yaml>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *kernelImage == "" || *scenarioPath == "" {
		exit(errors.New("-kernel and -scenario are required"))
	}

	s, err := LoadScenario(*scenarioPath)
	if err != nil {
		return err
	}

	if err := runScenario(*kernelImage, s); err != nil {
		return fmt.Errorf("scenario %q failed: %w", s.Name, err)
	}

	fmt.Printf("scenario %q passed\n", s.Name)
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
