// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authorization decides whether a user may perform an action.
//
// The evaluator composes the three stores: principal (who the user is
// and which capabilities their groups carry), ledger (which objects
// each group can see), and attribute (per-key read/set access lists).
// A decision is computed from a single principal snapshot so that a
// concurrent membership change cannot produce a half-old, half-new
// answer.
//
// Denials carry a reason for logging, but callers surfacing errors to
// clients must collapse every denial into the same response: a user
// who lacks visibility of an object receives exactly the answer they
// would receive if the object did not exist.
//
// AutoShareOnLookup is the one operation here that writes: when a
// deployment enables sharing-on-query, a successful lookup grants the
// looked-up object to the caller's groups that carry the
// share_queried_objects capability. It is an explicit command invoked
// by the service layer, never a side effect of Authorize.
package authorization
