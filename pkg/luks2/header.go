// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"encoding/binary"
	"io"
)

// readBinaryHeader decodes one 4096-byte header copy from r at offset off.
func readBinaryHeader(r io.ReaderAt, off int64) (BinaryHeader, error) {
	buf := make([]byte, binaryHeaderSize)
	if _, err := r.ReadAt(buf, off); err != nil {
		return BinaryHeader{}, newErr(Io, "read header", err)
	}

	var hdr BinaryHeader
	copy(hdr.Magic[:], buf[0:6])
	hdr.Version = binary.BigEndian.Uint16(buf[6:8])
	hdr.HeaderSize = binary.BigEndian.Uint64(buf[8:16])
	hdr.SeqID = binary.BigEndian.Uint64(buf[16:24])
	copy(hdr.Label[:], buf[24:72])
	copy(hdr.ChecksumAlg[:], buf[72:104])
	copy(hdr.Salt[:], buf[104:168])
	copy(hdr.UUID[:], buf[168:208])
	copy(hdr.Subsystem[:], buf[208:256])
	hdr.HeaderOffset = binary.BigEndian.Uint64(buf[256:264])
	copy(hdr.Checksum[:], buf[448:512])

	return hdr, nil
}

func validateHeader(hdr BinaryHeader, wantMagic string, which string) error {
	if !bytes.Equal(hdr.Magic[:], []byte(wantMagic)) {
		return newErr(BadSignature, which, nil)
	}
	if hdr.Version != luks2Version {
		return newErr(BadSignature, which, nil)
	}
	return nil
}

// ReadHeader locates, validates and selects the active LUKS2 binary header
// from r (the device, or a detached header file). It reads the primary
// header at offset 0; on any signature or version mismatch it fails
// immediately without trying the secondary copy. It then reads the
// secondary header at the primary's declared hdr_size and picks whichever
// copy carries the larger seqid, the primary winning ties.
func ReadHeader(r io.ReaderAt) (BinaryHeader, error) {
	primary, err := readBinaryHeader(r, 0)
	if err != nil {
		return BinaryHeader{}, err
	}
	if err := validateHeader(primary, luks2MagicPrimary, "primary"); err != nil {
		return BinaryHeader{}, err
	}

	secondaryOff, err := safeUint64ToInt64(primary.HeaderSize)
	if err != nil {
		return BinaryHeader{}, newErr(BadArgument, "hdr_size", err)
	}

	secondary, err := readBinaryHeader(r, secondaryOff)
	if err != nil {
		return BinaryHeader{}, err
	}
	if err := validateHeader(secondary, luks2MagicSecondary, "secondary"); err != nil {
		return BinaryHeader{}, err
	}

	if secondary.SeqID > primary.SeqID {
		return secondary, nil
	}
	return primary, nil
}

// readJSONRegion reads the JSON metadata region following hdr and returns it
// with the NUL terminator stripped. Per the on-disk layout, the region
// occupies hdr_size - sizeof(BinaryHeader) bytes immediately after the
// 4096-byte binary header.
func readJSONRegion(r io.ReaderAt, hdr BinaryHeader) ([]byte, error) {
	headerSize, err := safeUint64ToInt(hdr.HeaderSize)
	if err != nil {
		return nil, newErr(BadArgument, "hdr_size", err)
	}
	jsonLen := headerSize - binaryHeaderSize
	if jsonLen < 0 {
		return nil, newErr(BadArgument, "hdr_size smaller than binary header", nil)
	}

	offset, err := safeUint64ToInt64(hdr.HeaderOffset)
	if err != nil {
		return nil, newErr(BadArgument, "hdr_offset", err)
	}

	buf := make([]byte, jsonLen)
	if _, err := r.ReadAt(buf, offset+binaryHeaderSize); err != nil {
		return nil, newErr(Io, "read json region", err)
	}

	nul := bytes.IndexByte(buf, 0)
	if nul == -1 {
		return nil, newErr(BadArgument, "unterminated JSON header", nil)
	}
	return buf[:nul], nil
}
