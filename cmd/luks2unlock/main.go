// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

const usage = `
USAGE:
    luks2unlock <command> [options]

COMMANDS:
    scan <device> [uuid]    Probe a device for a LUKS2 header and print its UUID
    unlock <device>         Unlock a LUKS2 volume, prompting for a passphrase
    help                    Show this help message

EXAMPLES:
    luks2unlock scan /dev/sdb1
    luks2unlock unlock /dev/sdb1
`

func main() {
	cli := NewCLI()
	code := cli.Run()
	if code != 0 {
		cli.ExitFunc(code)
	}
}
