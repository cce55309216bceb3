// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectid provides content-addressed identity for repository
// objects.
//
// An object's identity is the BLAKE3 keyed hash of its content, with
// a per-kind domain key so that a config and a blob with identical
// bytes are distinct objects. Content addressing makes re-upload
// idempotent: the same content always resolves to the same node in
// the derivation graph.
package objectid

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ID is a 32-byte BLAKE3 keyed digest identifying one object.
type ID [32]byte

// Kind is the object's artifact kind. It selects the hashing domain
// and, in the payload store, the compression codec.
type Kind uint8

const (
	// KindFile is a raw sample file.
	KindFile Kind = iota

	// KindConfig is a structured configuration extracted from a
	// sample.
	KindConfig

	// KindBlob is an unstructured text blob.
	KindBlob
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindConfig:
		return "config"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseKind parses a kind from its wire name.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "file":
		return KindFile, nil
	case "config":
		return KindConfig, nil
	case "blob":
		return KindBlob, nil
	default:
		return 0, fmt.Errorf("unknown object kind %q", name)
	}
}

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same content bytes produce different IDs for
// different object kinds. The byte values are the ASCII encoding of
// the domain name, zero-padded to 32 bytes, so the keys are
// inspectable in hex dumps without sacrificing any cryptographic
// property.
type domainKey [32]byte

var (
	fileDomainKey = domainKey{
		'd', 'e', 'p', 'o', 't', '.', 'o', 'b', 'j', 'e', 'c', 't', '.',
		'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	configDomainKey = domainKey{
		'd', 'e', 'p', 'o', 't', '.', 'o', 'b', 'j', 'e', 'c', 't', '.',
		'c', 'o', 'n', 'f', 'i', 'g', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	blobDomainKey = domainKey{
		'd', 'e', 'p', 'o', 't', '.', 'o', 'b', 'j', 'e', 'c', 't', '.',
		'b', 'l', 'o', 'b', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Compute returns the content-addressed ID for the given kind and
// content bytes.
func Compute(kind Kind, content []byte) ID {
	var key domainKey
	switch kind {
	case KindConfig:
		key = configDomainKey
	case KindBlob:
		key = blobDomainKey
	default:
		key = fileDomainKey
	}
	return keyedHash(key, content)
}

func keyedHash(key domainKey, data []byte) ID {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed fails only for a key that is not 32 bytes, which
		// the domainKey type makes impossible.
		panic(fmt.Sprintf("objectid: keyed hasher: %v", err))
	}
	hasher.Write(data)
	var id ID
	hasher.Sum(id[:0])
	return id
}

// String returns the 64-character lowercase hex encoding. This is the
// canonical object identifier format in the wire protocol, logs, and
// the share ledger.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is all zero bytes. The zero ID is
// never a valid object identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Parse decodes a 64-character hex object identifier.
func Parse(s string) (ID, error) {
	var id ID
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parsing object id: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("object id is %d bytes, want %d", len(decoded), len(id))
	}
	copy(id[:], decoded)
	return id, nil
}
