// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

// Package fixture builds byte-exact synthetic LUKS2 volumes for tests: a
// real binary header pair, a hand-assembled JSON metadata region (so key
// order in the keyslots/segments/digests objects is exactly what the test
// specifies, not whatever a map happens to iterate), and real AF-split,
// PBKDF2-derived, XTS-encrypted keyslot areas. It is the format-writing
// counterpart to the unlock core: where that core only ever reads a LUKS2
// volume, this package is the only thing in the module that writes one.
package fixture

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/aead/serpent"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/xts"
)

const (
	binaryHeaderSize      = 4096
	keyslotAreaSectorSize = 512
)

// KeyslotSpec describes one keyslot to embed in a built volume.
type KeyslotSpec struct {
	// Priority defaults to 1 if zero; set -1 explicitly to get priority 0
	// ("skip this slot"), since Go's zero value can't distinguish "unset"
	// from "zero".
	Priority int64

	// KDFType is "pbkdf2" (default), "argon2i" or "argon2id". Argon2
	// slots are written with plausible-looking time/memory/cpus fields
	// but are never derivable (the core rejects them by design) and
	// Passphrase is ignored for them.
	KDFType string

	// Passphrase unlocks this slot. Required for pbkdf2 slots.
	Passphrase []byte

	Cipher           string // default "aes"
	KeySize          int    // master key length in bytes, default 64
	AFStripes        int    // default 4
	Hash             string // default "sha256"
	PBKDF2Iterations int    // default 1000
}

// BuildOptions configures an entire synthetic volume.
type BuildOptions struct {
	UUID      string // 36-char UUID string; defaults to a fixed test UUID
	Keyslots  []KeyslotSpec
	MasterKey []byte // shared master key across all pbkdf2 keyslots

	SegmentEncryption string // default "aes-xts-plain64"
	SegmentSectorSize int64  // default 4096
	SegmentSize       string // default "dynamic"
	SegmentOffset     uint64 // default computed after keyslot areas

	DigestHash       string // default "sha256"
	DigestIterations int64  // default 1000

	SeqID uint64 // primary/secondary seqid, default 1 for both

	// SecondaryJSON, if non-nil, overrides the secondary header's JSON
	// metadata and seqid, for building primary/secondary-disagreement
	// fixtures.
	SecondaryJSON  []byte
	SecondarySeqID uint64
	CorruptPrimary bool // flips the primary magic, for BadSignature tests
}

// Volume is a fully assembled synthetic LUKS2 device image.
type Volume struct {
	Data      []byte
	UUID      string
	MasterKey []byte
}

// builtKeyslot is an assembled keyslot: its spec plus the encrypted area
// bytes and that area's offset relative to the start of the keyslot area
// region (absolute file offsets aren't known until header size is fixed).
type builtKeyslot struct {
	index      int
	spec       KeyslotSpec
	areaOffset uint64
	areaSize   uint64
	areaSalt   []byte
	encrypted  []byte
}

// Build assembles a synthetic volume per opts. The returned Volume.Data can
// be wrapped in a bytes.Reader (which implements io.ReaderAt) and fed
// directly to luks2.ReadHeader / luks2.RecoverKey.
func Build(opts BuildOptions) (*Volume, error) {
	uuid := opts.UUID
	if uuid == "" {
		uuid = "11111111-2222-3333-4444-555555555555"
	}

	masterKey := opts.MasterKey
	if masterKey == nil {
		masterKey = make([]byte, 64)
		if _, err := rand.Read(masterKey); err != nil {
			return nil, err
		}
	}

	var built []builtKeyslot
	var keyslotBodies []byte // concatenated encrypted areas, in order
	runningAreaOffset := uint64(0)

	for i, spec := range opts.Keyslots {
		spec := normalizeSpec(spec)

		keyMaterial := masterKey
		if spec.KeySize != len(masterKey) {
			// Slot declares a different key_size than the shared master
			// key; truncate/extend deterministically so AF split/merge
			// round-trips self-consistently for slots that intentionally
			// use a different size.
			keyMaterial = make([]byte, spec.KeySize)
			copy(keyMaterial, masterKey)
		}

		areaKeySize := 64 // AES-256-XTS / Serpent-256-XTS area key size
		areaSalt := randomBytes(32)

		var encryptedArea []byte
		if spec.KDFType == "pbkdf2" {
			areaKey := pbkdf2.Key(spec.Passphrase, areaSalt, spec.PBKDF2Iterations, areaKeySize, hashFuncByName(spec.Hash))

			split, err := afSplit(keyMaterial, spec.AFStripes, spec.Hash)
			if err != nil {
				clearBytes(areaKey)
				return nil, err
			}

			padded := padTo(split, keyslotAreaSectorSize)
			enc, err := xtsEncrypt(spec.Cipher, areaKey, padded)
			clearBytes(areaKey)
			clearBytes(split)
			if err != nil {
				return nil, err
			}
			encryptedArea = enc
		} else {
			// Argon2 slots are never actually decrypted by the core; fill
			// with random bytes of the same shape so the area still has a
			// plausible size.
			encryptedArea = randomBytes(padLen(spec.KeySize*spec.AFStripes, keyslotAreaSectorSize))
		}

		built = append(built, builtKeyslot{
			index:      i,
			spec:       spec,
			areaOffset: runningAreaOffset,
			areaSize:   uint64(len(encryptedArea)),
			areaSalt:   areaSalt,
			encrypted:  encryptedArea,
		})
		keyslotBodies = append(keyslotBodies, encryptedArea...)
		runningAreaOffset += uint64(len(encryptedArea))
	}

	digestSalt := randomBytes(32)
	digestHash := opts.DigestHash
	if digestHash == "" {
		digestHash = "sha256"
	}
	digestIterations := opts.DigestIterations
	if digestIterations == 0 {
		digestIterations = 1000
	}
	digestValue := pbkdf2.Key(masterKey, digestSalt, int(digestIterations), 32, hashFuncByName(digestHash))

	segEncryption := opts.SegmentEncryption
	if segEncryption == "" {
		segEncryption = "aes-xts-plain64"
	}
	segSectorSize := opts.SegmentSectorSize
	if segSectorSize == 0 {
		segSectorSize = 4096
	}
	segSize := opts.SegmentSize
	if segSize == "" {
		segSize = "dynamic"
	}

	var pbkdf2Indices []int
	for _, b := range built {
		if b.spec.KDFType == "pbkdf2" {
			pbkdf2Indices = append(pbkdf2Indices, b.index)
		}
	}

	// keyslot areas start right after both header copies; header size (and
	// therefore the keyslot area region's absolute start) depends on the
	// JSON size, which in turn embeds absolute keyslot-area offsets. Their
	// decimal text width is stable across the one plausible range of
	// offsets here, so a couple of fixed-point iterations converge.
	var jsonBytes []byte
	var hdrSize uint64
	for attempt := 0; attempt < 4; attempt++ {
		guessHdrSize := roundUp(binaryHeaderSize+uint64(len(jsonBytes))+1, 4096)
		keyAreaStart := 2 * guessHdrSize

		segOffset := opts.SegmentOffset
		if segOffset == 0 {
			segOffset = roundUp(keyAreaStart+runningAreaOffset, uint64(segSectorSize))
		}

		js := buildJSON(built, keyAreaStart, pbkdf2Indices, digestHash, digestIterations, digestSalt, digestValue,
			segEncryption, segSectorSize, segSize, segOffset)

		newHdrSize := roundUp(binaryHeaderSize+uint64(len(js))+1, 4096)
		jsonBytes = js
		if newHdrSize == hdrSize {
			break
		}
		hdrSize = newHdrSize
	}

	primaryJSON := padJSON(jsonBytes, hdrSize-binaryHeaderSize)

	secondaryJSON := primaryJSON
	secondarySeqID := opts.SeqID
	if secondarySeqID == 0 {
		secondarySeqID = 1
	}
	primarySeqID := secondarySeqID
	if opts.SecondaryJSON != nil {
		secondaryJSON = padJSON(opts.SecondaryJSON, hdrSize-binaryHeaderSize)
		secondarySeqID = opts.SecondarySeqID
	}

	var buf bytes.Buffer
	primaryMagic := "LUKS\xba\xbe"
	if opts.CorruptPrimary {
		primaryMagic = "XXXX\xba\xbe"
	}
	buf.Write(encodeHeader(primaryMagic, hdrSize, primarySeqID, uuid, 0))
	buf.Write(primaryJSON)
	buf.Write(encodeHeader("SKUL\xba\xbe", hdrSize, secondarySeqID, uuid, hdrSize))
	buf.Write(secondaryJSON)
	buf.Write(keyslotBodies)

	return &Volume{Data: buf.Bytes(), UUID: uuid, MasterKey: masterKey}, nil
}

func normalizeSpec(s KeyslotSpec) KeyslotSpec {
	if s.Priority == 0 {
		s.Priority = 1
	} else if s.Priority == -1 {
		s.Priority = 0
	}
	if s.KDFType == "" {
		s.KDFType = "pbkdf2"
	}
	if s.Cipher == "" {
		s.Cipher = "aes"
	}
	if s.KeySize == 0 {
		s.KeySize = 64
	}
	if s.AFStripes == 0 {
		s.AFStripes = 4
	}
	if s.Hash == "" {
		s.Hash = "sha256"
	}
	if s.PBKDF2Iterations == 0 {
		s.PBKDF2Iterations = 1000
	}
	return s
}

func buildJSON(built []builtKeyslot, keyAreaStart uint64, pbkdf2Indices []int, digestHash string, digestIterations int64,
	digestSalt, digestValue []byte, segEncryption string, segSectorSize int64, segSize string, segOffset uint64) []byte {

	var sb strings.Builder
	sb.WriteString("{")

	sb.WriteString(`"keyslots":{`)
	for i, b := range built {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%q:", strconv.Itoa(b.index))
		sb.WriteString(keyslotJSON(b.spec, b.areaSalt, keyAreaStart+b.areaOffset, b.areaSize))
	}
	sb.WriteString("}")

	sb.WriteString(`,"segments":{"0":`)
	fmt.Fprintf(&sb, `{"type":"crypt","offset":%q,"size":%q,"encryption":%q,"sector_size":%d}`,
		strconv.FormatUint(segOffset, 10), segSize, segEncryption, segSectorSize)
	sb.WriteString("}")

	sb.WriteString(`,"digests":{"0":`)
	sb.WriteString(digestJSON(pbkdf2Indices, digestHash, digestIterations, digestSalt, digestValue))
	sb.WriteString("}")

	sb.WriteString("}")
	return []byte(sb.String())
}

func keyslotJSON(spec KeyslotSpec, areaSalt []byte, areaOffset, areaSize uint64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `{"type":"luks2","key_size":%d,"priority":%d,`, spec.KeySize, spec.Priority)
	fmt.Fprintf(&sb, `"area":{"type":"raw","key_size":64,"offset":%q,"size":%q,"encryption":%q},`,
		strconv.FormatUint(areaOffset, 10), strconv.FormatUint(areaSize, 10), spec.Cipher+"-xts-plain64")

	switch spec.KDFType {
	case "argon2i", "argon2id":
		fmt.Fprintf(&sb, `"kdf":{"type":%q,"salt":%q,"time":4,"memory":1048576,"cpus":4},`,
			spec.KDFType, base64.StdEncoding.EncodeToString(randomBytes(32)))
	default:
		fmt.Fprintf(&sb, `"kdf":{"type":"pbkdf2","hash":%q,"iterations":%d,"salt":%q},`,
			spec.Hash, spec.PBKDF2Iterations, base64.StdEncoding.EncodeToString(areaSalt))
	}

	fmt.Fprintf(&sb, `"af":{"type":"luks1","stripes":%d,"hash":%q}}`, spec.AFStripes, spec.Hash)
	return sb.String()
}

func digestJSON(pbkdf2Indices []int, hash string, iterations int64, salt, digest []byte) string {
	var sb strings.Builder
	sb.WriteString(`{"type":"pbkdf2","keyslots":[`)
	for i, idx := range pbkdf2Indices {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%q", strconv.Itoa(idx))
	}
	sb.WriteString(`],"segments":["0"],`)
	fmt.Fprintf(&sb, `"hash":%q,"iterations":%d,"salt":%q,"digest":%q}`,
		hash, iterations, base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(digest))
	return sb.String()
}

func encodeHeader(magic string, hdrSize, seqID uint64, uuid string, hdrOffset uint64) []byte {
	buf := make([]byte, binaryHeaderSize)
	copy(buf[0:6], magic)
	binary.BigEndian.PutUint16(buf[6:8], 2)
	binary.BigEndian.PutUint64(buf[8:16], hdrSize)
	binary.BigEndian.PutUint64(buf[16:24], seqID)
	copy(buf[168:208], uuid)
	binary.BigEndian.PutUint64(buf[256:264], hdrOffset)
	return buf
}

func padJSON(data []byte, size uint64) []byte {
	out := make([]byte, size)
	copy(out, data)
	return out
}

func padTo(data []byte, multiple int) []byte {
	n := padLen(len(data), multiple)
	out := make([]byte, n)
	copy(out, data)
	return out
}

func padLen(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}

func roundUp(n uint64, multiple uint64) uint64 {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func hashFuncByName(name string) func() hash.Hash {
	switch name {
	case "sha512":
		return sha512.New
	default:
		return sha256.New
	}
}

func xtsEncrypt(cipherName string, key, data []byte) ([]byte, error) {
	var xc *xts.Cipher
	var err error
	switch cipherName {
	case "serpent":
		xc, err = xts.NewCipher(serpent.NewCipher, key)
	default:
		xc, err = xts.NewCipher(aes.NewCipher, key)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	for i := 0; i*keyslotAreaSectorSize < len(data); i++ {
		start := i * keyslotAreaSectorSize
		end := start + keyslotAreaSectorSize
		xc.Encrypt(out[start:end], data[start:end], uint64(i)) // #nosec G115 - loop bounded by data length
	}
	return out, nil
}

// afSplit is a local copy of the LUKS1 AF-split transform, kept independent
// of pkg/luks2 so this package never imports it (a fixture builder that
// reused the code under test wouldn't catch regressions in it).
func afSplit(data []byte, stripes int, hashAlgo string) ([]byte, error) {
	blockSize := len(data)
	result := make([]byte, blockSize*stripes)

	randomSize := blockSize * (stripes - 1)
	if _, err := rand.Read(result[:randomSize]); err != nil {
		return nil, err
	}

	hashFunc := hashFuncByName(hashAlgo)
	buffer := make([]byte, blockSize)
	defer clearBytes(buffer)
	for i := 0; i < stripes-1; i++ {
		block := result[i*blockSize : (i+1)*blockSize]
		xorInto(block, buffer, buffer)
		diffuse(buffer, hashFunc, blockSize)
	}
	xorInto(data, buffer, result[randomSize:])

	return result, nil
}

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

func xorInto(a, b, dest []byte) {
	for i := range dest {
		dest[i] = a[i] ^ b[i]
	}
}
