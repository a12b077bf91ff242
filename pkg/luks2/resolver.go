// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"strconv"

	"github.com/bootward/luks2unlock/internal/ljson"
)

// metadataRoot holds the ordered top-level objects parsed out of the JSON
// metadata region: root.keyslots, root.digests, root.segments.
type metadataRoot struct {
	keyslots *ljson.Object
	digests  *ljson.Object
	segments *ljson.Object
}

func parseMetadataRoot(data []byte) (metadataRoot, error) {
	v, err := ljson.Parse(data)
	if err != nil {
		return metadataRoot{}, newErr(BadArgument, "parse json", err)
	}
	root, err := v.Object()
	if err != nil {
		return metadataRoot{}, newErr(BadArgument, "json root", err)
	}

	keyslots, err := ljson.GetObject(root, "keyslots")
	if err != nil {
		return metadataRoot{}, newErr(BadArgument, "keyslots", err)
	}
	digests, err := ljson.GetObject(root, "digests")
	if err != nil {
		return metadataRoot{}, newErr(BadArgument, "digests", err)
	}
	segments, err := ljson.GetObject(root, "segments")
	if err != nil {
		return metadataRoot{}, newErr(BadArgument, "segments", err)
	}

	return metadataRoot{keyslots: keyslots, digests: digests, segments: segments}, nil
}

// getKeyslot resolves the i-th keyslot in on-disk order to its parsed
// Keyslot, the first Digest that references it, and the first Segment that
// digest in turn covers.
//
// LUKS2 stores keyslots as a JSON object whose member names are stringified
// integers; position i in that object is what the orchestrator's trial loop
// iterates over, not the numeric value of the key itself, so the keyslot's
// own key must be parsed out of the member name separately.
func getKeyslot(root metadataRoot, i int) (Keyslot, Digest, Segment, error) {
	member, ok := root.keyslots.Child(i)
	if !ok {
		return Keyslot{}, Digest{}, Segment{}, newErr(BadArgument, "keyslot index out of range", nil)
	}
	keyslotKey, err := strconv.ParseUint(member.Key, 10, 64)
	if err != nil {
		return Keyslot{}, Digest{}, Segment{}, newErr(BadArgument, "keyslot key", err)
	}
	keyslotObj, err := member.Value.Object()
	if err != nil {
		return Keyslot{}, Digest{}, Segment{}, newErr(BadArgument, "keyslot value", err)
	}
	keyslot, err := parseKeyslot(int(keyslotKey), keyslotObj)
	if err != nil {
		return Keyslot{}, Digest{}, Segment{}, err
	}

	var digest Digest
	found := false
	for d := 0; d < root.digests.Len(); d++ {
		dm, _ := root.digests.Child(d)
		digestObj, err := dm.Value.Object()
		if err != nil {
			return Keyslot{}, Digest{}, Segment{}, newErr(BadArgument, "digest value", err)
		}
		parsed, err := parseDigest(d, digestObj)
		if err != nil {
			return Keyslot{}, Digest{}, Segment{}, err
		}
		if keyslotKey <= maxBitmapIndex && parsed.Keyslots&(1<<keyslotKey) != 0 {
			digest = parsed
			found = true
			break
		}
	}
	if !found {
		return Keyslot{}, Digest{}, Segment{}, newErr(FileNotFound, "no digest references keyslot", nil)
	}

	var segment Segment
	found = false
	for s := 0; s < root.segments.Len(); s++ {
		sm, _ := root.segments.Child(s)
		segKey, err := strconv.ParseUint(sm.Key, 10, 64)
		if err != nil {
			return Keyslot{}, Digest{}, Segment{}, newErr(BadArgument, "segment key", err)
		}
		segObj, err := sm.Value.Object()
		if err != nil {
			return Keyslot{}, Digest{}, Segment{}, newErr(BadArgument, "segment value", err)
		}
		parsed, err := parseSegment(int(segKey), segObj)
		if err != nil {
			return Keyslot{}, Digest{}, Segment{}, err
		}
		if segKey > maxBitmapIndex || digest.Segments&(1<<segKey) == 0 {
			continue
		}
		segment = parsed
		found = true
		break
	}
	if !found {
		return Keyslot{}, Digest{}, Segment{}, newErr(FileNotFound, "no segment referenced by digest", nil)
	}

	return keyslot, digest, segment, nil
}
