// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PassphraseSource supplies the secret the unlock orchestrator tries
// against each keyslot: either raw key-file bytes, or an interactively
// prompted passphrase.
type PassphraseSource interface {
	// Passphrase returns the candidate secret for the named volume. The
	// caller is responsible for zeroing the returned buffer once done.
	Passphrase(volumeName, partition, uuid string) ([]byte, error)
}

// KeyfilePassphrase supplies the raw contents of a key file verbatim, with
// no length bound and no trimming.
type KeyfilePassphrase struct {
	Data []byte
}

func (k KeyfilePassphrase) Passphrase(string, string, string) ([]byte, error) {
	out := make([]byte, len(k.Data))
	copy(out, k.Data)
	return out, nil
}

// InteractivePassphrase prompts on a terminal file descriptor, bounded at
// maxPassphraseLen characters, matching the bootloader's fixed-size
// passphrase buffer.
type InteractivePassphrase struct {
	Fd int
}

func (p InteractivePassphrase) Passphrase(volumeName, partition, uuid string) ([]byte, error) {
	prompt := promptMessage(volumeName, partition, uuid)
	if _, err := fmt.Fprint(os.Stderr, prompt); err != nil {
		return nil, newErr(Io, "write prompt", err)
	}

	pass, err := term.ReadPassword(p.Fd)
	if err != nil {
		return nil, newErr(Io, "read passphrase", err)
	}
	if _, err := fmt.Fprintln(os.Stderr); err != nil {
		clearBytes(pass)
		return nil, newErr(Io, "write prompt", err)
	}

	if len(pass) > maxPassphraseLen {
		clearBytes(pass[maxPassphraseLen:])
		pass = pass[:maxPassphraseLen]
	}
	return pass, nil
}

func promptMessage(volumeName, partition, uuid string) string {
	if partition != "" {
		return fmt.Sprintf("Enter passphrase for %s,%s (%s): ", volumeName, partition, uuid)
	}
	return fmt.Sprintf("Enter passphrase for %s (%s): ", volumeName, uuid)
}
