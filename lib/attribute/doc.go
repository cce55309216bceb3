// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package attribute implements Depot's per-attribute-key access
// control overlay.
//
// Attributes are (object, key, value) facts attached to repository
// objects. Keys are declared once and live forever: a key's name can
// never be renamed or deleted, which guarantees that historical
// attribute references and URL templates stay valid for the lifetime
// of the instance. Everything else about a key (label, description,
// URL template, hidden flag) is editable, as are its per-group ACL
// rows.
//
// Authorization for attributes is layered: reading a value requires
// visibility of the object (decided by the ledger) AND read permission
// on the key (a per-group can_read row, or the reading_all_attributes
// capability). Writing is analogous with can_set. Permissions are per
// key, not per value — values carry no owner, so removal permission is
// key-scoped.
//
// Hidden keys restrict discovery: their values answer exact-match
// queries but never wildcard searches and never appear in listings,
// unless the reader holds reading_all_attributes. This lets an
// instance attach sensitive pivoting data (C2 endpoints, customer
// identifiers) that confirms what an analyst already knows without
// being enumerable.
package attribute
