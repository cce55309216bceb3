// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines Depot's fixed, closed enumeration of
// group capabilities.
//
// A capability is a boolean, group-level permission gate checked by
// the access decision function before specific actions. The set of
// capabilities is fixed at compile time and represented as bit flags
// so that a group's capability set is a single machine word and the
// union across a user's groups is a bitwise OR. Union is monotonic:
// adding a group to a user never removes a capability.
package capability

import (
	"fmt"
	"math/bits"
	"strings"
)

// Capability is a single named permission gate. Values are bit flags;
// exactly one bit is set per capability.
type Capability uint32

const (
	// AddingTags permits adding and removing tags on visible objects.
	AddingTags Capability = 1 << iota

	// RemovingObjects permits deleting objects from the repository.
	RemovingObjects

	// AccessAllObjects grants visibility of every object created
	// while the capability is held. Not retroactive: objects created
	// before the capability was granted stay invisible unless shared
	// explicitly.
	AccessAllObjects

	// ShareQueriedObjects causes objects to be shared with the group
	// when a member looks them up directly by identifier.
	ShareQueriedObjects

	// ReadingAllAttributes bypasses per-key read ACLs, including for
	// hidden keys.
	ReadingAllAttributes

	// AddingAllAttributes bypasses per-key set ACLs.
	AddingAllAttributes

	// ManagingAttributes permits declaring attribute keys and editing
	// their per-group ACL rows.
	ManagingAttributes

	// RemovingAttributes permits removing attribute values. Removal
	// is key-scoped: values carry no owner.
	RemovingAttributes

	// AddingConfigs permits uploading configuration objects.
	AddingConfigs

	// AddingBlobs permits uploading blob objects.
	AddingBlobs

	// UnlimitedRequests exempts the group from request rate limits.
	// Enforced by the surrounding REST layer, not by the core.
	UnlimitedRequests

	// ManageUsers permits creating users and groups, changing
	// memberships, and toggling group capabilities.
	ManageUsers

	// SharingObjects permits granting other groups visibility of
	// visible objects.
	SharingObjects

	// AddingParents permits attaching derivation edges to existing
	// objects.
	AddingParents

	// AddingComments permits commenting on visible objects.
	AddingComments

	// RemovingComments permits deleting comments.
	RemovingComments

	// capabilityCount is the number of defined capabilities. Bits at
	// or above this position are invalid.
	capabilityCount = iota
)

// names maps bit position to wire name. Order must match the
// declaration order above.
var names = [capabilityCount]string{
	"adding_tags",
	"removing_objects",
	"access_all_objects",
	"share_queried_objects",
	"reading_all_attributes",
	"adding_all_attributes",
	"managing_attributes",
	"removing_attributes",
	"adding_configs",
	"adding_blobs",
	"unlimited_requests",
	"manage_users",
	"sharing_objects",
	"adding_parents",
	"adding_comments",
	"removing_comments",
}

// String returns the wire name of the capability, or "invalid(N)" for
// values that are not exactly one defined bit.
func (c Capability) String() string {
	if bits.OnesCount32(uint32(c)) != 1 {
		return fmt.Sprintf("invalid(%#x)", uint32(c))
	}
	position := bits.TrailingZeros32(uint32(c))
	if position >= capabilityCount {
		return fmt.Sprintf("invalid(%#x)", uint32(c))
	}
	return names[position]
}

// Parse resolves a wire name to its capability. Returns an error for
// unknown names — the enumeration is closed, so an unknown name is a
// caller bug or a config typo, never a forward-compatibility case.
func Parse(name string) (Capability, error) {
	for position, candidate := range names {
		if candidate == name {
			return Capability(1 << position), nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// Set is a set of capabilities, one bit per capability.
type Set uint32

// All returns the set containing every defined capability.
func All() Set {
	return Set(1<<capabilityCount - 1)
}

// Has reports whether the set contains the capability.
func (s Set) Has(c Capability) bool {
	return uint32(s)&uint32(c) != 0
}

// Union returns the union of two sets.
func (s Set) Union(other Set) Set {
	return s | other
}

// With returns the set with the capability added.
func (s Set) With(c Capability) Set {
	return s | Set(c)
}

// Without returns the set with the capability removed.
func (s Set) Without(c Capability) Set {
	return s &^ Set(c)
}

// Names returns the wire names of the capabilities in the set, in
// declaration order. Returns nil for the empty set.
func (s Set) Names() []string {
	var result []string
	for position := 0; position < capabilityCount; position++ {
		if s.Has(Capability(1 << position)) {
			result = append(result, names[position])
		}
	}
	return result
}

// String returns the comma-joined wire names, or "(none)" for the
// empty set. For logging and CLI output.
func (s Set) String() string {
	if s == 0 {
		return "(none)"
	}
	return strings.Join(s.Names(), ",")
}

// ParseSet resolves a list of wire names to a set. Duplicate names
// are harmless. Returns an error naming the first unknown capability.
func ParseSet(capabilityNames []string) (Set, error) {
	var result Set
	for _, name := range capabilityNames {
		c, err := Parse(name)
		if err != nil {
			return 0, err
		}
		result = result.With(c)
	}
	return result, nil
}
