// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash"
)

// afHashFunc returns the digest used by AF diffusion, by name, from the same
// hash table PBKDF2 uses (sha1, sha256, sha384, sha512).
func afHashFunc(name string) (func() hash.Hash, error) {
	h, err := pbkdf2HashFunc(name)
	if err != nil {
		return nil, newErr(FileNotFound, fmt.Sprintf("af hash %q", name), err)
	}
	return h, nil
}

// afSplit expands data into stripes pseudo-random blocks such that afMerge
// recovers it, but any proper subset of stripes leaks nothing. This is the
// LUKS1 AF definition, kept bit-for-bit compatible with cryptsetup's
// on-disk format since LUKS2 keyslot areas still use it.
func afSplit(data []byte, stripes int, hashAlgo string) ([]byte, error) {
	if stripes <= 0 {
		return nil, newErr(BadArgument, "af stripes must be positive", nil)
	}

	blockSize := len(data)
	result := make([]byte, blockSize*stripes)

	randomSize := blockSize * (stripes - 1)
	if _, err := rand.Read(result[:randomSize]); err != nil {
		return nil, newErr(CryptoError, "af split random", err)
	}

	hashFunc, err := afHashFunc(hashAlgo)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, blockSize)
	defer clearBytes(buffer)
	for i := 0; i < stripes-1; i++ {
		block := result[i*blockSize : (i+1)*blockSize]
		xorBytes(block, buffer, buffer)
		diffuse(buffer, hashFunc, blockSize)
	}
	xorBytes(data, buffer, result[randomSize:])

	return result, nil
}

// afMerge is the inverse of afSplit: it recovers the original keyLen-byte
// key from stripes*keyLen bytes of AF-split material.
func afMerge(splitData []byte, stripes int, keyLen int, hashAlgo string) ([]byte, error) {
	if len(splitData) != keyLen*stripes {
		return nil, newErr(BadArgument, "af split data size mismatch", nil)
	}

	hashFunc, err := afHashFunc(hashAlgo)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, keyLen)
	defer clearBytes(buffer)
	for i := 0; i < stripes-1; i++ {
		block := splitData[i*keyLen : (i+1)*keyLen]
		xorBytes(block, buffer, buffer)
		diffuse(buffer, hashFunc, keyLen)
	}

	result := make([]byte, keyLen)
	lastBlock := splitData[(stripes-1)*keyLen:]
	xorBytes(lastBlock, buffer, result)

	return result, nil
}

// diffuse hashes data in digestSize chunks, each salted with its chunk
// index, and writes the result back over data in place.
func diffuse(data []byte, hashFunc func() hash.Hash, blockSize int) {
	h := hashFunc()
	digestSize := h.Size()
	numBlocks := blockSize / digestSize

	result := make([]byte, 0, blockSize)
	for i := 0; i < numBlocks; i++ {
		block := data[i*digestSize : (i+1)*digestSize]
		result = append(result, hashBlock(block, h, i)...)
	}
	if remainder := blockSize % digestSize; remainder != 0 {
		lastBlock := data[blockSize-remainder:]
		hashed := hashBlock(lastBlock, h, numBlocks)
		result = append(result, hashed[:remainder]...)
	}

	copy(data, result)
	clearBytes(result)
}

func hashBlock(block []byte, h hash.Hash, iv int) []byte {
	h.Reset()
	ivBytes := make([]byte, 4)
	defer clearBytes(ivBytes)
	binary.BigEndian.PutUint32(ivBytes, uint32(iv)) // #nosec G115 - iv bounded by stripe count
	h.Write(ivBytes)
	h.Write(block)
	return h.Sum(nil)
}

func xorBytes(a, b, dest []byte) {
	for i := range dest {
		dest[i] = a[i] ^ b[i]
	}
}
