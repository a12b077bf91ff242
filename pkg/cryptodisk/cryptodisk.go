// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package cryptodisk models the generic crypto-disk sink that a completed
// LUKS2 unlock installs its master key and sector-cipher configuration
// into. Live per-sector decryption for ordinary block I/O is an external
// collaborator's concern; this package implements only the cipher/key
// plumbing and the same sector decrypt routine the unlock core itself
// needs to decrypt a keyslot's key material and (on success) verify the
// chosen segment's cipher is constructible.
package cryptodisk

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"strings"

	"github.com/aead/serpent"
	"golang.org/x/crypto/xts"
)

// CryptoDisk holds the state a successful unlock installs: the source
// volume's UUID, the resolved sector-layout parameters, and the cipher
// primed with the master key.
type CryptoDisk struct {
	UUID    string
	ModName string

	cipherName string
	modeName   string
	xtsCipher  *xts.Cipher

	// OffsetSectors, LogSectorSize and TotalSectors describe the data
	// segment's layout, as computed by the unlock orchestrator from the
	// chosen segment's offset/sector_size/size.
	OffsetSectors int64
	LogSectorSize uint
	TotalSectors  int64
}

type blockCipherFactory func([]byte) (cipher.Block, error)

var blockCiphers = map[string]blockCipherFactory{
	"aes":     aes.NewCipher,
	"serpent": serpent.NewCipher,
}

// SetCipher configures the disk for the named cipher/mode pair, e.g.
// ("aes", "xts-plain64"). Any mode string beginning with "xts" is accepted
// and every other mode is rejected; the sector tweak is always the plain
// 64-bit sector number, whatever follows "xts" in the mode string.
func (c *CryptoDisk) SetCipher(cipherName, mode string) error {
	if !strings.HasPrefix(mode, "xts") {
		return fmt.Errorf("cryptodisk: unsupported cipher mode %q", mode)
	}
	if _, ok := blockCiphers[cipherName]; !ok {
		return fmt.Errorf("cryptodisk: unsupported cipher %q", cipherName)
	}
	c.cipherName = cipherName
	c.modeName = mode
	c.xtsCipher = nil
	return nil
}

// SetKey installs the key material for the previously configured cipher.
// XTS splits the key in half internally: one half drives the block cipher,
// the other half drives the tweak.
func (c *CryptoDisk) SetKey(key []byte) error {
	factory, ok := blockCiphers[c.cipherName]
	if !ok {
		return fmt.Errorf("cryptodisk: SetKey before SetCipher")
	}
	xc, err := xts.NewCipher(factory, key)
	if err != nil {
		return fmt.Errorf("cryptodisk: xts cipher setup: %w", err)
	}
	c.xtsCipher = xc
	return nil
}

// Decrypt decrypts buf in place, sectorSize bytes at a time, with the XTS
// sector counter starting at ivStart and incrementing per sector.
func (c *CryptoDisk) Decrypt(buf []byte, sectorSize int, ivStart uint64) error {
	if c.xtsCipher == nil {
		return fmt.Errorf("cryptodisk: decrypt before SetKey")
	}
	if sectorSize <= 0 || len(buf)%sectorSize != 0 {
		return fmt.Errorf("cryptodisk: buffer length %d not a multiple of sector size %d", len(buf), sectorSize)
	}

	numSectors := len(buf) / sectorSize
	plain := make([]byte, sectorSize)
	for i := 0; i < numSectors; i++ {
		start := i * sectorSize
		sector := buf[start : start+sectorSize]
		c.xtsCipher.Decrypt(plain, sector, ivStart+uint64(i)) // #nosec G115 - i bounded by buffer length
		copy(sector, plain)
	}
	for i := range plain {
		plain[i] = 0
	}
	return nil
}
