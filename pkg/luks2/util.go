// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"math"
	"math/bits"
)

// clearBytes securely zeros a byte slice. Called on every buffer that ever
// held a passphrase, area key, split-key plaintext, or candidate master key,
// on every exit path including error returns.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func safeUint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, newErr(BadArgument, "integer overflow", nil)
	}
	return int64(v), nil
}

func safeUint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, newErr(BadArgument, "integer overflow", nil)
	}
	return int(v), nil
}

func safeInt64ToInt(v int64) (int, error) {
	if v < 0 || v > int64(math.MaxInt) {
		return 0, newErr(BadArgument, "integer overflow", nil)
	}
	return int(v), nil
}

// log2SectorSize returns log2(n) for a power-of-two sector size, matching
// the source's bitwidth(uint) - 1 - count_leading_zeros(n) computation.
func log2SectorSize(n int64) (uint, error) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, newErr(BadArgument, "sector_size not a power of two", nil)
	}
	return uint(bits.Len64(uint64(n)) - 1), nil
}
