// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"io"
	"strings"

	"github.com/bootward/luks2unlock/pkg/cryptodisk"
)

// splitEncryption splits an "<cipher>-<mode>" string on its first '-'.
func splitEncryption(enc string) (cipher, mode string, err error) {
	idx := strings.Index(enc, "-")
	if idx < 0 {
		return "", "", newErr(BadArgument, "encryption string missing '-': "+enc, nil)
	}
	return enc[:idx], enc[idx+1:], nil
}

// decryptKey derives the area key from passphrase, decrypts the keyslot's
// AF-split key material, and AF-merges it into a candidate master key. The
// caller owns zeroing the returned key.
func decryptKey(areaSrc io.ReaderAt, keyslot Keyslot, passphrase []byte) ([]byte, error) {
	areaKey, err := deriveAreaKey(keyslot.KDF, passphrase, keyslot.Area.KeySize)
	if err != nil {
		return nil, err
	}
	defer clearBytes(areaKey)

	cipherName, mode, err := splitEncryption(keyslot.Area.Encryption)
	if err != nil {
		return nil, err
	}

	disk := &cryptodisk.CryptoDisk{}
	if err := disk.SetCipher(cipherName, mode); err != nil {
		return nil, newErr(CryptoError, "area cipher setup", err)
	}
	if err := disk.SetKey(areaKey); err != nil {
		return nil, newErr(CryptoError, "area key setup", err)
	}

	size, err := safeUint64ToInt(keyslot.Area.Size)
	if err != nil {
		return nil, newErr(BadArgument, "area.size", err)
	}
	offset, err := safeUint64ToInt64(keyslot.Area.Offset)
	if err != nil {
		return nil, newErr(BadArgument, "area.offset", err)
	}

	areaData := make([]byte, size)
	defer clearBytes(areaData)
	if _, err := areaSrc.ReadAt(areaData, offset); err != nil {
		return nil, newErr(Io, "read keyslot area", err)
	}

	// The keyslot area is always decrypted in 512-byte sectors starting at
	// IV sector 0, regardless of the data segment's own sector_size.
	if err := disk.Decrypt(areaData, keyslotAreaSectorSize, 0); err != nil {
		return nil, newErr(CryptoError, "area decrypt", err)
	}

	afLen := keyslot.KeySize * keyslot.AF.Stripes
	afLenInt, err := safeInt64ToInt(afLen)
	if err != nil {
		return nil, newErr(BadArgument, "af size overflow", nil)
	}
	if int64(len(areaData)) < afLen {
		return nil, newErr(BadArgument, "decrypted area smaller than af split data", nil)
	}

	keyLen, err := safeInt64ToInt(keyslot.KeySize)
	if err != nil {
		return nil, newErr(BadArgument, "key_size", err)
	}
	stripes, err := safeInt64ToInt(keyslot.AF.Stripes)
	if err != nil {
		return nil, newErr(BadArgument, "af.stripes", err)
	}

	masterKey, err := afMerge(areaData[:afLenInt], stripes, keyLen, keyslot.AF.Hash)
	if err != nil {
		return nil, err
	}
	return masterKey, nil
}
