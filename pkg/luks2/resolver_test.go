// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"encoding/base64"
	"testing"
)

func testSalt() string { return base64.StdEncoding.EncodeToString([]byte("saltsaltsaltsalt")) }
func testDigest() string { return base64.StdEncoding.EncodeToString([]byte("digestdigestdige")) }

func sampleMetadataJSON() []byte {
	salt := testSalt()
	digest := testDigest()
	return []byte(`{
		"keyslots":{
			"0":{
				"type":"luks2","key_size":64,"priority":1,
				"area":{"type":"raw","offset":"32768","size":"512","encryption":"aes-xts-plain64","key_size":64},
				"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
				"af":{"type":"luks1","stripes":4,"hash":"sha256"}
			},
			"1":{
				"type":"luks2","key_size":64,"priority":0,
				"area":{"type":"raw","offset":"33280","size":"512","encryption":"aes-xts-plain64","key_size":64},
				"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
				"af":{"type":"luks1","stripes":4,"hash":"sha256"}
			}
		},
		"segments":{
			"0":{"type":"crypt","offset":"16777216","size":"dynamic","encryption":"aes-xts-plain64","sector_size":4096}
		},
		"digests":{
			"0":{
				"type":"pbkdf2","keyslots":["0","1"],"segments":["0"],
				"hash":"sha256","iterations":1000,"salt":"` + salt + `","digest":"` + digest + `"
			}
		}
	}`)
}

func TestGetKeyslotResolvesDigestAndSegment(t *testing.T) {
	root, err := parseMetadataRoot(sampleMetadataJSON())
	if err != nil {
		t.Fatalf("parseMetadataRoot failed: %v", err)
	}

	ks, digest, seg, err := getKeyslot(root, 0)
	if err != nil {
		t.Fatalf("getKeyslot(0) failed: %v", err)
	}
	if ks.Index != 0 {
		t.Fatalf("ks.Index = %d, want 0", ks.Index)
	}
	if digest.Index != 0 {
		t.Fatalf("digest.Index = %d, want 0", digest.Index)
	}
	if seg.Index != 0 {
		t.Fatalf("seg.Index = %d, want 0", seg.Index)
	}
}

func TestGetKeyslotByPositionNotValue(t *testing.T) {
	salt := testSalt()
	digest := testDigest()
	// keyslots object has members keyed "5" and "0", in that on-disk order;
	// position 0 must resolve to the member named "5", not value 0.
	data := []byte(`{
		"keyslots":{
			"5":{
				"type":"luks2","key_size":64,"priority":1,
				"area":{"type":"raw","offset":"0","size":"512","encryption":"aes-xts-plain64","key_size":64},
				"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
				"af":{"type":"luks1","stripes":4,"hash":"sha256"}
			},
			"0":{
				"type":"luks2","key_size":64,"priority":1,
				"area":{"type":"raw","offset":"512","size":"512","encryption":"aes-xts-plain64","key_size":64},
				"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
				"af":{"type":"luks1","stripes":4,"hash":"sha256"}
			}
		},
		"segments":{"0":{"type":"crypt","offset":"16777216","size":"dynamic","encryption":"aes-xts-plain64","sector_size":4096}},
		"digests":{"0":{"type":"pbkdf2","keyslots":["5","0"],"segments":["0"],"hash":"sha256","iterations":1000,"salt":"` + salt + `","digest":"` + digest + `"}}
	}`)
	root, err := parseMetadataRoot(data)
	if err != nil {
		t.Fatalf("parseMetadataRoot failed: %v", err)
	}

	ks, _, _, err := getKeyslot(root, 0)
	if err != nil {
		t.Fatalf("getKeyslot(0) failed: %v", err)
	}
	if ks.Index != 5 {
		t.Fatalf("getKeyslot(0).Index = %d, want 5 (the key of the first member)", ks.Index)
	}
}

func TestGetKeyslotNoDigestReferences(t *testing.T) {
	salt := testSalt()
	digest := testDigest()
	data := []byte(`{
		"keyslots":{"0":{
			"type":"luks2","key_size":64,"priority":1,
			"area":{"type":"raw","offset":"0","size":"512","encryption":"aes-xts-plain64","key_size":64},
			"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
			"af":{"type":"luks1","stripes":4,"hash":"sha256"}
		}},
		"segments":{"0":{"type":"crypt","offset":"0","size":"dynamic","encryption":"aes-xts-plain64","sector_size":4096}},
		"digests":{"0":{"type":"pbkdf2","keyslots":["1"],"segments":["0"],"hash":"sha256","iterations":1000,"salt":"` + salt + `","digest":"` + digest + `"}}
	}`)
	root, err := parseMetadataRoot(data)
	if err != nil {
		t.Fatalf("parseMetadataRoot failed: %v", err)
	}

	if _, _, _, err := getKeyslot(root, 0); !IsKind(err, FileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestGetKeyslotNoSegmentCovered(t *testing.T) {
	salt := testSalt()
	digest := testDigest()
	data := []byte(`{
		"keyslots":{"0":{
			"type":"luks2","key_size":64,"priority":1,
			"area":{"type":"raw","offset":"0","size":"512","encryption":"aes-xts-plain64","key_size":64},
			"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
			"af":{"type":"luks1","stripes":4,"hash":"sha256"}
		}},
		"segments":{"0":{"type":"crypt","offset":"0","size":"dynamic","encryption":"aes-xts-plain64","sector_size":4096}},
		"digests":{"0":{"type":"pbkdf2","keyslots":["0"],"segments":["1"],"hash":"sha256","iterations":1000,"salt":"` + salt + `","digest":"` + digest + `"}}
	}`)
	root, err := parseMetadataRoot(data)
	if err != nil {
		t.Fatalf("parseMetadataRoot failed: %v", err)
	}

	if _, _, _, err := getKeyslot(root, 0); !IsKind(err, FileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestGetKeyslotMalformedNonMatchingSegmentErrors(t *testing.T) {
	salt := testSalt()
	digest := testDigest()
	// segment "1" is not covered by the digest's bitmap (only "0" is), but it
	// is still malformed (missing "encryption"); it must fail the whole
	// resolution rather than being skipped unparsed.
	data := []byte(`{
		"keyslots":{"0":{
			"type":"luks2","key_size":64,"priority":1,
			"area":{"type":"raw","offset":"0","size":"512","encryption":"aes-xts-plain64","key_size":64},
			"kdf":{"type":"pbkdf2","hash":"sha256","iterations":1000,"salt":"` + salt + `"},
			"af":{"type":"luks1","stripes":4,"hash":"sha256"}
		}},
		"segments":{
			"1":{"type":"crypt","offset":"0","size":"dynamic","sector_size":4096},
			"0":{"type":"crypt","offset":"0","size":"dynamic","encryption":"aes-xts-plain64","sector_size":4096}
		},
		"digests":{"0":{"type":"pbkdf2","keyslots":["0"],"segments":["0"],"hash":"sha256","iterations":1000,"salt":"` + salt + `","digest":"` + digest + `"}}
	}`)
	root, err := parseMetadataRoot(data)
	if err != nil {
		t.Fatalf("parseMetadataRoot failed: %v", err)
	}

	if _, _, _, err := getKeyslot(root, 0); !IsKind(err, BadArgument) {
		t.Fatalf("expected BadArgument for malformed non-matching segment, got %v", err)
	}
}

func TestGetKeyslotIndexOutOfRange(t *testing.T) {
	root, err := parseMetadataRoot(sampleMetadataJSON())
	if err != nil {
		t.Fatalf("parseMetadataRoot failed: %v", err)
	}
	if _, _, _, err := getKeyslot(root, 99); err == nil {
		t.Fatal("expected error for out-of-range keyslot index")
	}
}

func TestParseMetadataRootMissingSection(t *testing.T) {
	if _, err := parseMetadataRoot([]byte(`{"keyslots":{},"digests":{}}`)); !IsKind(err, BadArgument) {
		t.Fatalf("expected BadArgument for missing segments, got %v", err)
	}
}
