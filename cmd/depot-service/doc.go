// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Depot-service is the Depot daemon: a Unix-socket CBOR service
// exposing the artifact repository's authorization core. It owns the
// principal, ledger, and attribute databases and the payload tree,
// and serves uploads, lookups, sharing, graph traversal, and
// administration to whatever front end connects to the socket.
//
// Every request names the acting user; the daemon authorizes each
// action against the user's group snapshot before touching anything.
// Callers are authenticated by whoever controls the socket — a REST
// gateway, an ingestion pipeline, or an operator's CLI — not by the
// daemon itself.
//
// Configuration comes from a YAML file named by --config or the
// DEPOT_CONFIG environment variable. An optional JSONC seed file
// declares bootstrap groups, users, and attribute keys; it is applied
// idempotently on every start.
package main
