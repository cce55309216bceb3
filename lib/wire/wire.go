// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the request and response bodies of the Depot
// socket protocol.
//
// Every request carries "action" and "user"; the remaining fields are
// per-action. Object identifiers travel as hex strings, timestamps as
// RFC 3339 strings, so the same shapes serve CBOR on the socket and
// JSON in tooling that pretty-prints responses.
package wire

import "time"

// Request is the envelope every call starts with.
type Request struct {
	Action string `cbor:"action" json:"action"`
	User   string `cbor:"user" json:"user"`
}

// UploadRequest creates an object from inline content.
type UploadRequest struct {
	Request

	// Kind is "file", "config", or "blob".
	Kind string `cbor:"kind" json:"kind"`

	// Content is the raw payload bytes.
	Content []byte `cbor:"content" json:"content"`

	// Parents are identifiers of existing objects this one was
	// derived from.
	Parents []string `cbor:"parents,omitempty" json:"parents,omitempty"`

	// ShareWith names additional groups to grant at creation. The
	// uploader's groups and the holders of access_all_objects are
	// granted regardless.
	ShareWith []string `cbor:"share_with,omitempty" json:"share_with,omitempty"`
}

// UploadResponse reports the created (or pre-existing) object.
type UploadResponse struct {
	Object ObjectInfo `cbor:"object" json:"object"`

	// Created is false when the identical object already existed.
	Created bool `cbor:"created" json:"created"`
}

// ObjectRequest targets one object by identifier.
type ObjectRequest struct {
	Request

	ID string `cbor:"id" json:"id"`
}

// ObjectInfo is the record describing one object.
type ObjectInfo struct {
	ID        string    `cbor:"id" json:"id"`
	Kind      string    `cbor:"kind" json:"kind"`
	Uploader  string    `cbor:"uploader" json:"uploader"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
}

// GetResponse returns an object's record and payload.
type GetResponse struct {
	Object  ObjectInfo `cbor:"object" json:"object"`
	Content []byte     `cbor:"content" json:"content"`
}

// NeighborsResponse lists an object's direct parents or children.
type NeighborsResponse struct {
	IDs []string `cbor:"ids" json:"ids"`
}

// WalkResponse lists the objects reached by an ancestor or descendant
// traversal, in breadth-first order, excluding the start object.
type WalkResponse struct {
	IDs []string `cbor:"ids" json:"ids"`
}

// ShareRequest grants an object to a group.
type ShareRequest struct {
	Request

	ID    string `cbor:"id" json:"id"`
	Group string `cbor:"group" json:"group"`
}

// SharesResponse lists an object's explicit grants.
type SharesResponse struct {
	Shares []ShareInfo `cbor:"shares" json:"shares"`
}

// ShareInfo is one recorded grant.
type ShareInfo struct {
	Group     string    `cbor:"group" json:"group"`
	Reason    string    `cbor:"reason" json:"reason"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
}

// AddParentRequest links an existing object under a parent.
type AddParentRequest struct {
	Request

	Parent string `cbor:"parent" json:"parent"`
	Child  string `cbor:"child" json:"child"`
}

// AttributeRequest adds or removes one attribute value.
type AttributeRequest struct {
	Request

	ID    string `cbor:"id" json:"id"`
	Key   string `cbor:"key" json:"key"`
	Value string `cbor:"value" json:"value"`
}

// AttributeListRequest lists an object's attributes readable by the
// caller.
type AttributeListRequest struct {
	Request

	ID string `cbor:"id" json:"id"`
}

// AttributeListResponse lists attribute values.
type AttributeListResponse struct {
	Attributes []AttributeInfo `cbor:"attributes" json:"attributes"`
}

// AttributeInfo is one attribute value on one object.
type AttributeInfo struct {
	Key       string    `cbor:"key" json:"key"`
	Value     string    `cbor:"value" json:"value"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
}

// AttributeSearchRequest finds objects by attribute value. Query is
// an exact value or, with Wildcard, a pattern where * matches any
// run of characters.
type AttributeSearchRequest struct {
	Request

	Key      string `cbor:"key" json:"key"`
	Query    string `cbor:"query" json:"query"`
	Wildcard bool   `cbor:"wildcard,omitempty" json:"wildcard,omitempty"`
}

// AttributeSearchResponse lists matches the caller can see.
type AttributeSearchResponse struct {
	Matches []AttributeMatch `cbor:"matches" json:"matches"`
}

// AttributeMatch is one object carrying a matching attribute value.
type AttributeMatch struct {
	ID    string `cbor:"id" json:"id"`
	Key   string `cbor:"key" json:"key"`
	Value string `cbor:"value" json:"value"`
}

// KeyDeclareRequest declares or updates an attribute key.
type KeyDeclareRequest struct {
	Request

	Name        string `cbor:"name" json:"name"`
	Label       string `cbor:"label,omitempty" json:"label,omitempty"`
	Description string `cbor:"description,omitempty" json:"description,omitempty"`
	URLTemplate string `cbor:"url_template,omitempty" json:"url_template,omitempty"`
	Hidden      bool   `cbor:"hidden,omitempty" json:"hidden,omitempty"`
}

// KeyACLRequest grants, adjusts, or removes one group's access to a
// key. Remove deletes the group's entry; CanRead and CanSet are
// ignored when it is set.
type KeyACLRequest struct {
	Request

	Name    string `cbor:"name" json:"name"`
	Group   string `cbor:"group" json:"group"`
	CanRead bool   `cbor:"can_read" json:"can_read"`
	CanSet  bool   `cbor:"can_set" json:"can_set"`
	Remove  bool   `cbor:"remove,omitempty" json:"remove,omitempty"`
}

// KeyInfo describes one declared attribute key.
type KeyInfo struct {
	Name        string `cbor:"name" json:"name"`
	Label       string `cbor:"label,omitempty" json:"label,omitempty"`
	Description string `cbor:"description,omitempty" json:"description,omitempty"`
	URLTemplate string `cbor:"url_template,omitempty" json:"url_template,omitempty"`
	Hidden      bool   `cbor:"hidden" json:"hidden"`
}

// KeyListResponse lists the keys visible to the caller.
type KeyListResponse struct {
	Keys []KeyInfo `cbor:"keys" json:"keys"`
}

// GroupRequest creates a group or changes its capabilities.
type GroupRequest struct {
	Request

	Name         string   `cbor:"name" json:"name"`
	Capabilities []string `cbor:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// MemberRequest adds or removes a group member.
type MemberRequest struct {
	Request

	Group  string `cbor:"group" json:"group"`
	Member string `cbor:"member" json:"member"`
	Remove bool   `cbor:"remove,omitempty" json:"remove,omitempty"`
}

// UserRequest creates a user.
type UserRequest struct {
	Request

	Name string `cbor:"name" json:"name"`
}

// GroupInfo describes one group.
type GroupInfo struct {
	Name         string   `cbor:"name" json:"name"`
	Capabilities []string `cbor:"capabilities,omitempty" json:"capabilities,omitempty"`
	Private      bool     `cbor:"private" json:"private"`
}

// AuthorizeRequest asks for an access decision without performing the
// action. For tooling and front ends that want to hide unavailable
// operations.
type AuthorizeRequest struct {
	Request

	CheckAction string `cbor:"check_action" json:"check_action"`
	ID          string `cbor:"id,omitempty" json:"id,omitempty"`
	Key         string `cbor:"key,omitempty" json:"key,omitempty"`
}

// AuthorizeResponse reports the decision.
type AuthorizeResponse struct {
	Allowed bool `cbor:"allowed" json:"allowed"`
}

// StatusResponse reports daemon liveness and basic identity.
type StatusResponse struct {
	Version string `cbor:"version" json:"version"`

	// User echoes the caller as resolved by the daemon, with the
	// caller's group list. Empty when the user is unknown.
	User   string   `cbor:"user,omitempty" json:"user,omitempty"`
	Groups []string `cbor:"groups,omitempty" json:"groups,omitempty"`
}
