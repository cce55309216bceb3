// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"fmt"

	"github.com/bureau-foundation/depot/lib/capability"
)

// Action is an operation a user may attempt against the repository.
type Action int

const (
	// ActionViewObject reads an object's record, payload, parents,
	// or graph neighborhood.
	ActionViewObject Action = iota
	// ActionUploadFile creates a file object.
	ActionUploadFile
	// ActionUploadConfig creates a config object.
	ActionUploadConfig
	// ActionUploadBlob creates a blob object.
	ActionUploadBlob
	// ActionShareObject grants an object to another group.
	ActionShareObject
	// ActionAddParent links an existing object under a new parent.
	ActionAddParent
	// ActionRemoveObject deletes an object record.
	ActionRemoveObject
	// ActionAddTag attaches a tag to an object.
	ActionAddTag
	// ActionRemoveTag detaches a tag from an object.
	ActionRemoveTag
	// ActionAddComment attaches a comment to an object.
	ActionAddComment
	// ActionRemoveComment deletes a comment from an object.
	ActionRemoveComment
	// ActionReadAttribute reads attribute values under one key.
	ActionReadAttribute
	// ActionSetAttribute adds an attribute value under one key.
	ActionSetAttribute
	// ActionRemoveAttribute deletes an attribute value.
	ActionRemoveAttribute
	// ActionManageAttributes declares keys and edits key access lists.
	ActionManageAttributes
	// ActionManageUsers creates users and groups and edits memberships.
	ActionManageUsers

	actionCount = iota
)

var actionNames = [actionCount]string{
	ActionViewObject:       "view_object",
	ActionUploadFile:       "upload_file",
	ActionUploadConfig:     "upload_config",
	ActionUploadBlob:       "upload_blob",
	ActionShareObject:      "share_object",
	ActionAddParent:        "add_parent",
	ActionRemoveObject:     "remove_object",
	ActionAddTag:           "add_tag",
	ActionRemoveTag:        "remove_tag",
	ActionAddComment:       "add_comment",
	ActionRemoveComment:    "remove_comment",
	ActionReadAttribute:    "read_attribute",
	ActionSetAttribute:     "set_attribute",
	ActionRemoveAttribute:  "remove_attribute",
	ActionManageAttributes: "manage_attributes",
	ActionManageUsers:      "manage_users",
}

func (a Action) String() string {
	if a < 0 || a >= actionCount {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction maps a wire name back to an Action.
func ParseAction(name string) (Action, error) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

// keyRequirement is the attribute-key access an action needs.
type keyRequirement int

const (
	keyNone keyRequirement = iota
	keyRead
	keySet
)

// rule is one row of the policy table.
type rule struct {
	// needsVisibility means the target object must be visible to one
	// of the user's groups.
	needsVisibility bool
	// capability, when nonzero, must be carried by at least one of
	// the user's groups.
	capability capability.Capability
	// key is the attribute-key access required, checked against the
	// key's access list unless the bypass capability is held.
	key keyRequirement
	// bypass waives the key requirement when held.
	bypass capability.Capability
}

var rules = [actionCount]rule{
	ActionViewObject:   {needsVisibility: true},
	ActionUploadFile:   {},
	ActionUploadConfig: {capability: capability.AddingConfigs},
	ActionUploadBlob:   {capability: capability.AddingBlobs},
	ActionShareObject: {
		needsVisibility: true,
		capability:      capability.SharingObjects,
	},
	ActionAddParent: {
		needsVisibility: true,
		capability:      capability.AddingParents,
	},
	ActionRemoveObject: {
		needsVisibility: true,
		capability:      capability.RemovingObjects,
	},
	ActionAddTag: {
		needsVisibility: true,
		capability:      capability.AddingTags,
	},
	ActionRemoveTag: {
		needsVisibility: true,
		capability:      capability.AddingTags,
	},
	ActionAddComment: {
		needsVisibility: true,
		capability:      capability.AddingComments,
	},
	ActionRemoveComment: {
		needsVisibility: true,
		capability:      capability.RemovingComments,
	},
	ActionReadAttribute: {
		needsVisibility: true,
		key:             keyRead,
		bypass:          capability.ReadingAllAttributes,
	},
	ActionSetAttribute: {
		needsVisibility: true,
		key:             keySet,
		bypass:          capability.AddingAllAttributes,
	},
	ActionRemoveAttribute: {
		needsVisibility: true,
		capability:      capability.RemovingAttributes,
	},
	ActionManageAttributes: {capability: capability.ManagingAttributes},
	ActionManageUsers:      {capability: capability.ManageUsers},
}
