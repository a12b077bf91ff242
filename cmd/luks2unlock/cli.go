// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/bootward/luks2unlock/pkg/luks2"
)

// Terminal defines the interface for terminal operations, kept distinct
// from luks2.PassphraseSource so tests can substitute a scripted reader
// without touching a real file descriptor.
type Terminal interface {
	ReadPassword(fd int) ([]byte, error)
}

// CLI represents the command-line interface application.
type CLI struct {
	Args     []string
	Stdout   io.Writer
	Stderr   io.Writer
	Terminal Terminal
	ExitFunc func(code int)
	stdinFd  func() int
}

// NewCLI creates a new CLI instance with default dependencies.
func NewCLI() *CLI {
	return &CLI{
		Args:     os.Args,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Terminal: defaultTerminal{},
		ExitFunc: os.Exit,
		stdinFd:  func() int { return int(os.Stdin.Fd()) },
	}
}

type defaultTerminal struct{}

func (defaultTerminal) ReadPassword(fd int) ([]byte, error) {
	return term.ReadPassword(fd)
}

// Run executes the CLI with the given arguments.
func (c *CLI) Run() int {
	if len(c.Args) < 2 {
		_, _ = fmt.Fprint(c.Stdout, usage)
		return 1
	}

	switch c.Args[1] {
	case "scan":
		return c.cmdScan()
	case "unlock":
		return c.cmdUnlock()
	case "help", "--help", "-h":
		_, _ = fmt.Fprint(c.Stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(c.Stderr, "Unknown command: %s\n\n", c.Args[1])
		_, _ = fmt.Fprint(c.Stdout, usage)
		return 1
	}
}

func (c *CLI) cmdScan() int {
	if len(c.Args) < 3 {
		_, _ = fmt.Fprintln(c.Stdout, "Usage: luks2unlock scan <device> [uuid]")
		return 1
	}
	device := c.Args[2]
	var checkUUID string
	if len(c.Args) > 3 {
		parsed, err := uuid.Parse(c.Args[3])
		if err != nil {
			_, _ = fmt.Fprintf(c.Stderr, "invalid uuid %q: %v\n", c.Args[3], err)
			return 1
		}
		checkUUID = parsed.String()
	}

	f, err := os.Open(device) // #nosec G304 -- CLI tool intentionally opens a user-specified device
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "failed to open device: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	disk := luks2.Scan(f, checkUUID, false, nil)
	if disk == nil {
		_, _ = fmt.Fprintln(c.Stdout, "not a LUKS2 volume")
		return 1
	}
	_, _ = fmt.Fprintf(c.Stdout, "uuid: %s\n", disk.UUID)
	return 0
}

func (c *CLI) cmdUnlock() int {
	if len(c.Args) < 3 {
		_, _ = fmt.Fprintln(c.Stdout, "Usage: luks2unlock unlock <device>")
		return 1
	}
	device := c.Args[2]

	f, err := os.Open(device) // #nosec G304 -- CLI tool intentionally opens a user-specified device
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "failed to open device: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()

	size, logSectorSize, err := probeDeviceSize(f)
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "failed to size device: %v\n", err)
		return 1
	}

	fd := 0
	if c.stdinFd != nil {
		fd = c.stdinFd()
	}

	req := luks2.RecoverKeyRequest{
		Source:              f,
		Passphrase:          terminalPassphrase{term: c.Terminal, fd: fd},
		VolumeName:          device,
		SourceLogSectorSize: logSectorSize,
		SourceTotalSectors:  size,
	}

	disk, err := luks2.RecoverKey(req)
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "unlock failed: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(c.Stdout, "unlocked: uuid=%s offset_sectors=%d total_sectors=%d log_sector_size=%d\n",
		disk.UUID, disk.OffsetSectors, disk.TotalSectors, disk.LogSectorSize)
	return 0
}

// terminalPassphrase adapts the CLI's Terminal into a luks2.PassphraseSource.
type terminalPassphrase struct {
	term Terminal
	fd   int
}

func (t terminalPassphrase) Passphrase(volumeName, partition, uuid string) ([]byte, error) {
	if partition != "" {
		_, _ = fmt.Printf("Enter passphrase for %s,%s (%s): ", volumeName, partition, uuid)
	} else {
		_, _ = fmt.Printf("Enter passphrase for %s (%s): ", volumeName, uuid)
	}
	pass, err := t.term.ReadPassword(t.fd)
	fmt.Println()
	return pass, err
}

// probeDeviceSize derives a source sector count for dynamic segments. It
// tries BLKGETSIZE64 first, which only succeeds against a real block
// device; a regular file (including a loop-backed test image) falls
// through to Stat.
func probeDeviceSize(f *os.File) (sectors int64, logSectorSize uint, err error) {
	const nativeSectorSize = 512

	var size int64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))) // #nosec G103 -- unsafe.Pointer required for ioctl syscall
	if errno == 0 {
		return size / nativeSectorSize, 9, nil
	}

	info, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	return info.Size() / nativeSectorSize, 9, nil
}
