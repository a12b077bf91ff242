// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/bootward/luks2unlock/pkg/cryptodisk"
)

// RecoverKeyRequest bundles everything the orchestrator needs beyond the
// header/JSON region it reads for itself. Sector-level block I/O is an
// external collaborator's concern; SourceLogSectorSize and
// SourceTotalSectors describe the underlying device in its own native
// sector units, which the orchestrator needs only to size a "dynamic"
// segment.
type RecoverKeyRequest struct {
	// Source is the block device (or a regular file standing in for one
	// in tests). It is always where the encrypted data segment and, absent
	// HeaderSource, the binary header and keyslot areas are read from.
	Source io.ReaderAt
	// HeaderSource, if non-nil, is a detached header file: the binary
	// header, JSON metadata and keyslot areas are read from it instead of
	// Source.
	HeaderSource io.ReaderAt

	Passphrase PassphraseSource
	VolumeName string
	Partition  string

	SourceLogSectorSize uint
	SourceTotalSectors  int64
}

func (r RecoverKeyRequest) headerSource() io.ReaderAt {
	if r.HeaderSource != nil {
		return r.HeaderSource
	}
	return r.Source
}

// uuidString trims the trailing NULs out of a fixed-width UUID field.
func uuidString(b [40]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}

// RecoverKey runs the full unlock state machine: it reads and validates the
// binary header, parses the JSON metadata, obtains a passphrase, and tries
// each keyslot in ascending index order until one derives a master key that
// verifies against its digest. On success it returns a CryptoDisk primed
// with the master key and the resolved segment's sector layout.
func RecoverKey(req RecoverKeyRequest) (*cryptodisk.CryptoDisk, error) {
	hdrSrc := req.headerSource()

	hdr, err := ReadHeader(hdrSrc)
	if err != nil {
		return nil, err
	}

	jsonData, err := readJSONRegion(hdrSrc, hdr)
	if err != nil {
		return nil, err
	}

	root, err := parseMetadataRoot(jsonData)
	if err != nil {
		return nil, err
	}

	uuid := uuidString(hdr.UUID)
	passphrase, err := req.Passphrase.Passphrase(req.VolumeName, req.Partition, uuid)
	if err != nil {
		return nil, err
	}
	defer clearBytes(passphrase)

	for i := 0; i < root.keyslots.Len(); i++ {
		keyslot, digest, segment, err := getKeyslot(root, i)
		if err != nil {
			logrus.WithError(err).WithField("slot", i).Debug("luks2: keyslot resolution failed, skipping")
			continue
		}
		if keyslot.Priority == 0 {
			logrus.WithField("slot", i).Debug("luks2: keyslot has priority 0, skipping")
			continue
		}

		layout, err := computeSectorLayout(segment, req.SourceLogSectorSize, req.SourceTotalSectors)
		if err != nil {
			logrus.WithError(err).WithField("slot", i).Debug("luks2: sector layout computation failed, skipping")
			continue
		}

		masterKey, err := decryptKey(hdrSrc, keyslot, passphrase)
		if err != nil {
			logrus.WithError(err).WithField("slot", i).Debug("luks2: area decrypt failed, skipping")
			continue
		}

		if err := verifyKey(digest, masterKey); err != nil {
			clearBytes(masterKey)
			logrus.WithField("slot", i).Debug("luks2: digest verification failed, skipping")
			continue
		}

		cipherName, mode, err := splitEncryption(segment.Encryption)
		if err != nil {
			clearBytes(masterKey)
			return nil, err
		}

		disk := &cryptodisk.CryptoDisk{
			UUID:          uuid,
			ModName:       "luks2",
			OffsetSectors: layout.offsetSectors,
			LogSectorSize: layout.logSectorSize,
			TotalSectors:  layout.totalSectors,
		}
		if err := disk.SetCipher(cipherName, mode); err != nil {
			clearBytes(masterKey)
			return nil, newErr(CryptoError, "segment cipher setup", err)
		}
		if err := disk.SetKey(masterKey); err != nil {
			clearBytes(masterKey)
			return nil, newErr(CryptoError, "segment key setup", err)
		}
		clearBytes(masterKey)

		logrus.Infof("luks2: slot %d opened", i)
		return disk, nil
	}

	return nil, newErr(AccessDenied, "Invalid passphrase", nil)
}

type sectorLayout struct {
	offsetSectors int64
	logSectorSize uint
	totalSectors  int64
}

// computeSectorLayout derives the data segment's sector-addressing
// parameters. A "dynamic" segment (no fixed size recorded in the metadata,
// e.g. the segment simply runs to the end of the device) sizes itself off
// the source device's own sector count, rescaled from the source's native
// sector size to the segment's.
func computeSectorLayout(seg Segment, sourceLogSectorSize uint, sourceTotalSectors int64) (sectorLayout, error) {
	logSectorSize, err := log2SectorSize(seg.SectorSize)
	if err != nil {
		return sectorLayout{}, err
	}

	offsetSectors := int64(seg.Offset) >> logSectorSize

	var totalSectors int64
	if seg.Size == "dynamic" {
		if logSectorSize < sourceLogSectorSize {
			return sectorLayout{}, newErr(BadArgument, "segment sector size smaller than source sector size", nil)
		}
		shift := logSectorSize - sourceLogSectorSize
		totalSectors = (sourceTotalSectors >> shift) - offsetSectors
	} else {
		size, err := strconv.ParseUint(seg.Size, 10, 64)
		if err != nil {
			return sectorLayout{}, newErr(BadArgument, "segment.size", err)
		}
		totalSectors = int64(size) >> logSectorSize
	}

	return sectorLayout{
		offsetSectors: offsetSectors,
		logSectorSize: logSectorSize,
		totalSectors:  totalSectors,
	}, nil
}
