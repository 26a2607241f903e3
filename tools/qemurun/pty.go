package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// serialPty is a PTY pair QEMU's "-serial" backend writes the kernel's
// serial console onto; qemurun reads the master side to match
// ExpectLogLines. Opened via /dev/ptmx + the TIOCGPTN/TIOCSPTLCK ioctls
// rather than openpty(3), which x/sys/unix does not wrap directly (no
// cgo in this module, mirroring the teacher pack's raw-ioctl style of
// terminal handling).
type serialPty struct {
	master *os.File
	slave  *os.File
}

func openSerialPty() (*serialPty, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, fmt.Errorf("unlock pty: %w", err)
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("query pty number: %w", err)
	}

	slavePath := fmt.Sprintf("/dev/pts/%d", n)
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open %s: %w", slavePath, err)
	}

	return &serialPty{master: master, slave: slave}, nil
}

func (p *serialPty) Close() {
	p.slave.Close()
	p.master.Close()
}
