// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"io"
	"strings"

	"github.com/bootward/luks2unlock/pkg/cryptodisk"
)

// Scan is a lightweight, header-only probe: it advertises a volume's UUID
// without attempting to unlock it. It never returns an error - any header
// read or validation failure just means "not a LUKS2 volume here", and the
// caller moves on to the next candidate backend.
func Scan(src io.ReaderAt, checkUUID string, checkBoot bool, hdrFile io.ReaderAt) *cryptodisk.CryptoDisk {
	if checkBoot {
		return nil
	}

	hdrSrc := src
	if hdrFile != nil {
		hdrSrc = hdrFile
	}

	hdr, err := ReadHeader(hdrSrc)
	if err != nil {
		return nil
	}

	uuid := uuidString(hdr.UUID)
	if checkUUID != "" && !strings.EqualFold(checkUUID, uuid) {
		return nil
	}

	return &cryptodisk.CryptoDisk{
		UUID:    uuid,
		ModName: "luks2",
	}
}
