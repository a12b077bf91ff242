// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"encoding/base64"
	"fmt"

	"github.com/bootward/luks2unlock/internal/ljson"
)

func decodeSalt(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, newErr(BadArgument, "base64 decode", err)
	}
	return b, nil
}

func requireString(o *ljson.Object, field string) (string, error) {
	v, err := ljson.GetString(o, field)
	if err != nil {
		return "", newErr(BadArgument, field, err)
	}
	return v, nil
}

func requireInt64(o *ljson.Object, field string) (int64, error) {
	v, err := ljson.GetInt64(o, field)
	if err != nil {
		return 0, newErr(BadArgument, field, err)
	}
	return v, nil
}

func requireObject(o *ljson.Object, field string) (*ljson.Object, error) {
	v, err := ljson.GetObject(o, field)
	if err != nil {
		return nil, newErr(BadArgument, field, err)
	}
	return v, nil
}

// parseKeyslot decodes one member of the top-level "keyslots" object.
// Parsing is atomic: either every required field is present and well-typed,
// or the whole structure is rejected with BadArgument.
func parseKeyslot(index int, obj *ljson.Object) (Keyslot, error) {
	typ, err := requireString(obj, "type")
	if err != nil {
		return Keyslot{}, err
	}
	if typ != "luks2" {
		return Keyslot{}, newErr(BadArgument, fmt.Sprintf("keyslot %d: unsupported type %q", index, typ), nil)
	}

	keySize, err := requireInt64(obj, "key_size")
	if err != nil {
		return Keyslot{}, err
	}

	priority := int64(1)
	if v, ok := obj.Get("priority"); ok {
		priority, err = v.Int64()
		if err != nil {
			return Keyslot{}, newErr(BadArgument, "priority", err)
		}
	}

	areaObj, err := requireObject(obj, "area")
	if err != nil {
		return Keyslot{}, err
	}
	area, err := parseKeyslotArea(areaObj)
	if err != nil {
		return Keyslot{}, err
	}

	kdfObj, err := requireObject(obj, "kdf")
	if err != nil {
		return Keyslot{}, err
	}
	kdf, err := parseKDF(kdfObj)
	if err != nil {
		return Keyslot{}, err
	}

	afObj, err := requireObject(obj, "af")
	if err != nil {
		return Keyslot{}, err
	}
	af, err := parseAntiForensic(afObj)
	if err != nil {
		return Keyslot{}, err
	}

	return Keyslot{
		Index:    index,
		KeySize:  keySize,
		Priority: priority,
		Area:     area,
		KDF:      kdf,
		AF:       af,
	}, nil
}

func parseKeyslotArea(obj *ljson.Object) (KeyslotArea, error) {
	typ, err := requireString(obj, "type")
	if err != nil {
		return KeyslotArea{}, err
	}
	if typ != "raw" {
		return KeyslotArea{}, newErr(BadArgument, fmt.Sprintf("area: unsupported type %q", typ), nil)
	}

	offset, err := ljson.GetUint64(obj, "offset")
	if err != nil {
		return KeyslotArea{}, newErr(BadArgument, "area.offset", err)
	}
	size, err := ljson.GetUint64(obj, "size")
	if err != nil {
		return KeyslotArea{}, newErr(BadArgument, "area.size", err)
	}
	encryption, err := requireString(obj, "encryption")
	if err != nil {
		return KeyslotArea{}, err
	}
	keySize, err := requireInt64(obj, "key_size")
	if err != nil {
		return KeyslotArea{}, err
	}

	return KeyslotArea{
		Type:       typ,
		Offset:     offset,
		Size:       size,
		Encryption: encryption,
		KeySize:    keySize,
	}, nil
}

func parseKDF(obj *ljson.Object) (KDF, error) {
	typ, err := requireString(obj, "type")
	if err != nil {
		return KDF{}, err
	}

	saltStr, err := requireString(obj, "salt")
	if err != nil {
		return KDF{}, err
	}
	salt, err := decodeSalt(saltStr)
	if err != nil {
		return KDF{}, err
	}

	switch typ {
	case "argon2i", "argon2id":
		t, err := requireInt64(obj, "time")
		if err != nil {
			return KDF{}, err
		}
		mem, err := requireInt64(obj, "memory")
		if err != nil {
			return KDF{}, err
		}
		cpus, err := requireInt64(obj, "cpus")
		if err != nil {
			return KDF{}, err
		}
		return KDF{Type: typ, Salt: salt, Time: t, Memory: mem, CPUs: cpus}, nil
	case "pbkdf2":
		hash, err := requireString(obj, "hash")
		if err != nil {
			return KDF{}, err
		}
		iterations, err := requireInt64(obj, "iterations")
		if err != nil {
			return KDF{}, err
		}
		return KDF{Type: typ, Salt: salt, Hash: hash, Iterations: iterations}, nil
	default:
		return KDF{}, newErr(BadArgument, fmt.Sprintf("kdf: unsupported type %q", typ), nil)
	}
}

func parseAntiForensic(obj *ljson.Object) (AntiForensic, error) {
	typ, err := requireString(obj, "type")
	if err != nil {
		return AntiForensic{}, err
	}
	if typ != "luks1" {
		return AntiForensic{}, newErr(BadArgument, fmt.Sprintf("af: unsupported type %q", typ), nil)
	}
	stripes, err := requireInt64(obj, "stripes")
	if err != nil {
		return AntiForensic{}, err
	}
	hash, err := requireString(obj, "hash")
	if err != nil {
		return AntiForensic{}, err
	}
	return AntiForensic{Type: typ, Stripes: stripes, Hash: hash}, nil
}

// parseSegment decodes one member of the top-level "segments" object.
func parseSegment(index int, obj *ljson.Object) (Segment, error) {
	typ, err := requireString(obj, "type")
	if err != nil {
		return Segment{}, err
	}
	if typ != "crypt" {
		return Segment{}, newErr(BadArgument, fmt.Sprintf("segment %d: unsupported type %q", index, typ), nil)
	}

	offset, err := ljson.GetUint64(obj, "offset")
	if err != nil {
		return Segment{}, newErr(BadArgument, "segment.offset", err)
	}
	size, err := requireString(obj, "size")
	if err != nil {
		return Segment{}, err
	}
	encryption, err := requireString(obj, "encryption")
	if err != nil {
		return Segment{}, err
	}
	sectorSize, err := requireInt64(obj, "sector_size")
	if err != nil {
		return Segment{}, err
	}

	return Segment{
		Index:      index,
		Offset:     offset,
		Size:       size,
		Encryption: encryption,
		SectorSize: sectorSize,
	}, nil
}

// parseDigest decodes one member of the top-level "digests" object.
func parseDigest(index int, obj *ljson.Object) (Digest, error) {
	typ, err := requireString(obj, "type")
	if err != nil {
		return Digest{}, err
	}
	if typ != "pbkdf2" {
		return Digest{}, newErr(BadArgument, fmt.Sprintf("digest %d: unsupported type %q", index, typ), nil)
	}

	keyslots, err := requireBitmap(obj, "keyslots")
	if err != nil {
		return Digest{}, err
	}
	segments, err := requireBitmap(obj, "segments")
	if err != nil {
		return Digest{}, err
	}

	saltStr, err := requireString(obj, "salt")
	if err != nil {
		return Digest{}, err
	}
	salt, err := decodeSalt(saltStr)
	if err != nil {
		return Digest{}, err
	}

	digestStr, err := requireString(obj, "digest")
	if err != nil {
		return Digest{}, err
	}
	digest, err := decodeSalt(digestStr)
	if err != nil {
		return Digest{}, err
	}

	hash, err := requireString(obj, "hash")
	if err != nil {
		return Digest{}, err
	}
	iterations, err := requireInt64(obj, "iterations")
	if err != nil {
		return Digest{}, err
	}

	return Digest{
		Index:      index,
		Keyslots:   keyslots,
		Segments:   segments,
		Hash:       hash,
		Iterations: iterations,
		Salt:       salt,
		Digest:     digest,
	}, nil
}

// requireBitmap parses a JSON array of stringified integers into a 64-bit
// bitmap, setting bit v for every element value v < 64. Values >= 64 are
// silently dropped: the bitmap has no room for them, and the source treats
// that as a non-match rather than undefined behavior.
func requireBitmap(obj *ljson.Object, field string) (uint64, error) {
	v, ok := obj.Get(field)
	if !ok {
		return 0, newErr(BadArgument, field, nil)
	}
	arr, err := v.Array()
	if err != nil {
		return 0, newErr(BadArgument, field, err)
	}

	var mask uint64
	for i := 0; i < arr.Len(); i++ {
		elem, _ := arr.Child(i)
		n, err := elem.Uint64()
		if err != nil {
			return 0, newErr(BadArgument, fmt.Sprintf("%s[%d]", field, i), err)
		}
		if n <= maxBitmapIndex {
			mask |= 1 << n
		}
	}
	return mask, nil
}
