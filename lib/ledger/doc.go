// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements Depot's derivation graph and share ledger:
// the append-mostly DAG of artifact objects, the record of which
// groups were granted direct visibility of which objects, and the
// materialized effective-visibility relation that answers the hot-path
// question "can group G see object O" in one indexed lookup.
//
// # Visibility model
//
// A ShareRecord(O, G) means G can see O directly. Effective
// visibility flows strictly downward: G sees O iff a ShareRecord
// exists on O or on any transitive ancestor of O. Sharing a sample
// therefore shares every config and blob derived from it, but never
// the other way around.
//
// Rather than walking the ancestor chain on every read, the ledger
// maintains the effective relation eagerly in the visible table:
// reads are O(1) amortized, and mutations pay a cost bounded by the
// descendant count. Both propagation writers (Grant and the edge
// insertion in AddParent and CreateObject) are set unions expressed
// as INSERT OR IGNORE of a recursive descendant closure — commutative,
// idempotent, and monotonic, so concurrent mutations converge to the
// same effective sets in any interleaving and a retried propagation
// is harmless.
//
// # Atomicity
//
// Graph and share state live in one SQLite database. Every mutation
// (edge insertion with its cycle check, grant with its propagation)
// runs inside a single immediate transaction, so SQLite's single
// writer serializes the cycle check against concurrent edge
// insertions and a grant cannot race an in-flight AddParent into a
// lost update: whichever transaction commits second sees the other's
// rows. A failed propagation rolls the whole grant back; the visible
// table never shrinks except in RemoveObject.
//
// # Bounds
//
// Traversals and propagation are bounded by the configured traversal
// limit. Exceeding it is a system error (ErrCapacity), not a security
// decision, and the operation fails closed.
package ledger
