// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed applies a declarative bootstrap document to a fresh or
// existing deployment.
//
// A seed document is authored as JSONC (JSON extended with // line
// comments, /* block comments */, and trailing commas) and declares
// groups with their capabilities, users with their memberships, and
// attribute keys with their access lists. Applying a seed is
// idempotent: declared principals that already exist are updated to
// the declared state, and nothing is ever deleted. Operators keep the
// seed file in version control and re-apply it on every service start.
package seed
