// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"testing"
)

func TestDeriveAreaKeyPBKDF2(t *testing.T) {
	kdf := KDF{Type: "pbkdf2", Hash: "sha256", Iterations: 1000, Salt: []byte("saltsaltsaltsalt")}
	key1, err := deriveAreaKey(kdf, []byte("passphrase"), 64)
	if err != nil {
		t.Fatalf("deriveAreaKey failed: %v", err)
	}
	if len(key1) != 64 {
		t.Fatalf("key length = %d, want 64", len(key1))
	}

	key2, err := deriveAreaKey(kdf, []byte("passphrase"), 64)
	if err != nil {
		t.Fatalf("deriveAreaKey failed: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Fatal("same inputs must derive the same area key")
	}

	key3, err := deriveAreaKey(kdf, []byte("different"), 64)
	if err != nil {
		t.Fatalf("deriveAreaKey failed: %v", err)
	}
	if bytes.Equal(key1, key3) {
		t.Fatal("different passphrases must derive different area keys")
	}
}

func TestDeriveAreaKeyRejectsArgon2(t *testing.T) {
	for _, typ := range []string{"argon2i", "argon2id"} {
		kdf := KDF{Type: typ, Salt: []byte("saltsaltsaltsalt"), Time: 4, Memory: 1048576, CPUs: 4}
		_, err := deriveAreaKey(kdf, []byte("passphrase"), 64)
		if !IsKind(err, BadArgument) {
			t.Fatalf("%s: expected BadArgument, got %v", typ, err)
		}
	}
}

func TestDeriveAreaKeyUnsupportedHash(t *testing.T) {
	kdf := KDF{Type: "pbkdf2", Hash: "md5", Iterations: 1000, Salt: []byte("saltsaltsaltsalt")}
	if _, err := deriveAreaKey(kdf, []byte("passphrase"), 32); !IsKind(err, FileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestDeriveAreaKeyUnsupportedType(t *testing.T) {
	kdf := KDF{Type: "scrypt"}
	if _, err := deriveAreaKey(kdf, []byte("passphrase"), 32); !IsKind(err, BadArgument) {
		t.Fatalf("expected BadArgument, got %v", err)
	}
}

func TestDeriveDigestDeterministic(t *testing.T) {
	d := Digest{Hash: "sha256", Iterations: 1000, Salt: []byte("saltsaltsaltsalt"), Digest: make([]byte, 32)}
	d1, err := deriveDigest(d, []byte("master-key-bytes"))
	if err != nil {
		t.Fatalf("deriveDigest failed: %v", err)
	}
	d2, err := deriveDigest(d, []byte("master-key-bytes"))
	if err != nil {
		t.Fatalf("deriveDigest failed: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatal("deriveDigest must be deterministic for the same candidate")
	}
	if len(d1) != len(d.Digest) {
		t.Fatalf("deriveDigest length = %d, want %d (matching stored digest length)", len(d1), len(d.Digest))
	}
}

func TestPBKDF2HashFuncNames(t *testing.T) {
	for _, name := range []string{"sha1", "sha256", "sha384", "sha512", "SHA256"} {
		if _, err := pbkdf2HashFunc(name); err != nil {
			t.Fatalf("pbkdf2HashFunc(%q) failed: %v", name, err)
		}
	}
	if _, err := pbkdf2HashFunc("whirlpool"); !IsKind(err, FileNotFound) {
		t.Fatalf("expected FileNotFound for unknown hash, got %v", err)
	}
}
