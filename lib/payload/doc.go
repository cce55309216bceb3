// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload stores object content on the local filesystem,
// addressed by object identity.
//
// Each payload lives in one file under a two-level fan-out directory
// derived from the identifier's hex form. The file starts with a small
// header: a format version, the object kind, the compression tag, and
// the uncompressed size, followed by the (possibly compressed) bytes.
// Configs and blobs compress with zstd (they are text), files with LZ4
// (fast, content unknown); either falls back to storing raw bytes when
// compression does not shrink them.
//
// Writes are atomic: content goes to a temp file in the same directory
// and is renamed into place, so a crash never leaves a partial payload
// at a live path. Reads verify the stored bytes against the object
// identifier and return ErrCorrupt on mismatch, which turns silent
// disk corruption into a loud error instead of serving wrong content.
package payload
