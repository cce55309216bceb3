// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package principal implements Depot's store of users, groups, and
// memberships.
//
// Users and groups share one name namespace: every user owns a private
// group with the same name, auto-created with the user, holding
// exactly that one member forever. The private group is how "share
// with just me" works — it is an ordinary group in every query, with
// no special cases in the access decision path. Every user is also a
// member of the reserved "public" group.
//
// Two reserved groups exist from the moment the store is opened:
//
//   - "public": every user is a member. Sharing an object with public
//     makes it visible to everyone.
//   - "everything": holds the access_all_objects capability. The
//     ingestion path grants new objects to every group holding that
//     capability at creation time, which is what makes the capability
//     non-retroactive.
//
// A user's effective capability set is the union of the capability
// sets of all groups the user belongs to. Union is monotonic: group
// membership never subtracts a capability.
//
// The store is SQLite-backed via lib/sqlitepool and safe for
// concurrent use. Users and groups are never deleted; deactivation is
// handled by the surrounding system.
package principal
