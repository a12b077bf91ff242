// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import "crypto/subtle"

// verifyKey checks a candidate master key against a digest: it recomputes
// the PBKDF2 commitment with the digest's own hash/salt/iterations and
// compares it to the stored digest value in constant time.
func verifyKey(d Digest, candidate []byte) error {
	computed, err := deriveDigest(d, candidate)
	if err != nil {
		return err
	}
	defer clearBytes(computed)

	if subtle.ConstantTimeCompare(computed, d.Digest) != 1 {
		return newErr(AccessDenied, "digest mismatch", nil)
	}
	return nil
}
