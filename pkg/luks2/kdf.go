// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"crypto/sha1" // #nosec G505 - SHA-1 is FIPS-approved for HMAC (used in PBKDF2)
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2HashFunc looks up a digest by the name LUKS2 stores in kdf.hash /
// digest.hash. Unknown names are reported as FileNotFound per the core's
// error taxonomy, not BadArgument: the JSON field was well-formed, the hash
// provider simply doesn't carry that algorithm.
func pbkdf2HashFunc(name string) (func() hash.Hash, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return sha1.New, nil
	case "sha256":
		return sha256.New, nil
	case "sha384":
		return sha512.New384, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, newErr(FileNotFound, "hash "+name, nil)
	}
}

// deriveAreaKey derives the area key used to decrypt a keyslot's AF-split
// key material. Argon2 keyslots are recognized but rejected: the area-key
// KDF path supports PBKDF2 only.
func deriveAreaKey(kdf KDF, passphrase []byte, outLen int64) ([]byte, error) {
	switch kdf.Type {
	case "argon2i", "argon2id":
		return nil, newErr(BadArgument, "Argon2 not supported", nil)
	case "pbkdf2":
		hashFunc, err := pbkdf2HashFunc(kdf.Hash)
		if err != nil {
			return nil, err
		}
		key := pbkdf2.Key(passphrase, kdf.Salt, int(kdf.Iterations), int(outLen), hashFunc)
		return key, nil
	default:
		return nil, newErr(BadArgument, "unsupported kdf type "+kdf.Type, nil)
	}
}

// deriveDigest recomputes a digest value over candidate using PBKDF2 with
// the digest's own hash/salt/iterations, at the stored digest's length.
func deriveDigest(d Digest, candidate []byte) ([]byte, error) {
	hashFunc, err := pbkdf2HashFunc(d.Hash)
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(candidate, d.Salt, int(d.Iterations), len(d.Digest), hashFunc), nil
}
