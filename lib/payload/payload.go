// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/depot/lib/objectid"
)

// ErrNotFound reports that no payload is stored under the identifier.
var ErrNotFound = errors.New("payload not found")

// ErrCorrupt reports that the stored bytes no longer match the object
// identifier, or that the payload file's header is malformed.
var ErrCorrupt = errors.New("payload corrupt")

// formatVersion is the first header byte. Bump on incompatible layout
// changes.
const formatVersion = 1

// headerSize is version + kind + compression tag + uncompressed size.
const headerSize = 1 + 1 + 1 + 8

// Store is a content-addressed payload store rooted at one directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// StoreConfig configures a payload store.
type StoreConfig struct {
	// Root is the directory payloads are stored under. Created if
	// absent.
	Root string

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Open prepares a payload store rooted at cfg.Root.
func Open(cfg StoreConfig) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("payload: root directory is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, fmt.Errorf("payload: create root: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{root: cfg.Root, logger: logger}, nil
}

// path returns the storage path for an identifier: two fan-out levels
// then the full hex name.
func (s *Store) path(id objectid.ID) string {
	hex := id.String()
	return filepath.Join(s.root, hex[:2], hex[2:4], hex)
}

// Put stores content under its identity. The identifier must equal the
// content's computed identity for the kind; a mismatch is rejected
// before anything touches disk. Storing the same payload twice is a
// no-op.
func (s *Store) Put(ctx context.Context, id objectid.ID, kind objectid.Kind, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if computed := objectid.Compute(kind, content); computed != id {
		return fmt.Errorf("payload: content hashes to %s, not %s", computed, id)
	}

	target := s.path(id)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	tag := preferredCompression(kind)
	compressed, err := compress(content, tag)
	if errors.Is(err, errIncompressible) {
		tag = compressionNone
		compressed = content
	} else if err != nil {
		return fmt.Errorf("payload: compress %s: %w", id, err)
	}

	header := make([]byte, headerSize)
	header[0] = formatVersion
	header[1] = byte(kind)
	header[2] = byte(tag)
	binary.LittleEndian.PutUint64(header[3:], uint64(len(content)))

	directory := filepath.Dir(target)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("payload: create directory: %w", err)
	}
	temp, err := os.CreateTemp(directory, "incoming-*")
	if err != nil {
		return fmt.Errorf("payload: create temp file: %w", err)
	}
	defer os.Remove(temp.Name())

	if _, err := temp.Write(header); err != nil {
		temp.Close()
		return fmt.Errorf("payload: write header: %w", err)
	}
	if _, err := temp.Write(compressed); err != nil {
		temp.Close()
		return fmt.Errorf("payload: write content: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("payload: sync: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("payload: close temp file: %w", err)
	}
	if err := os.Rename(temp.Name(), target); err != nil {
		return fmt.Errorf("payload: rename into place: %w", err)
	}

	s.logger.Debug("payload stored",
		slog.String("object", id.String()),
		slog.String("kind", kind.String()),
		slog.String("compression", tag.String()),
		slog.Int("size", len(content)))
	return nil
}

// Get returns the stored content. The bytes are re-hashed against the
// identifier before being returned.
func (s *Store) Get(ctx context.Context, id objectid.ID) ([]byte, objectid.Kind, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("payload: read %s: %w", id, err)
	}
	if len(raw) < headerSize || raw[0] != formatVersion {
		return nil, 0, fmt.Errorf("payload: %s: bad header: %w", id, ErrCorrupt)
	}
	kind := objectid.Kind(raw[1])
	tag := compressionTag(raw[2])
	size := binary.LittleEndian.Uint64(raw[3:headerSize])

	content, err := decompress(raw[headerSize:], tag, int(size))
	if err != nil {
		return nil, 0, fmt.Errorf("payload: %s: %v: %w", id, err, ErrCorrupt)
	}
	if objectid.Compute(kind, content) != id {
		return nil, 0, fmt.Errorf("payload: %s: content hash mismatch: %w", id, ErrCorrupt)
	}
	return content, kind, nil
}

// Exists reports whether a payload is stored under the identifier
// without reading it.
func (s *Store) Exists(ctx context.Context, id objectid.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("payload: stat %s: %w", id, err)
	}
	return true, nil
}

// Remove deletes the stored payload. Removing an absent payload is a
// no-op: removal is invoked after the ledger record is already gone,
// and must not fail a completed deletion.
func (s *Store) Remove(ctx context.Context, id objectid.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("payload: remove %s: %w", id, err)
	}
	return nil
}
