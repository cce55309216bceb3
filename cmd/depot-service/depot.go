// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/depot/lib/attribute"
	"github.com/bureau-foundation/depot/lib/authorization"
	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/codec"
	"github.com/bureau-foundation/depot/lib/config"
	"github.com/bureau-foundation/depot/lib/ledger"
	"github.com/bureau-foundation/depot/lib/objectid"
	"github.com/bureau-foundation/depot/lib/payload"
	"github.com/bureau-foundation/depot/lib/principal"
	"github.com/bureau-foundation/depot/lib/service"
	"github.com/bureau-foundation/depot/lib/wire"
)

// errAccessDenied is the single error every authorization denial maps
// to on the wire. One message for missing capability, invisible
// object, and absent object, so responses never reveal whether a
// target exists.
var errAccessDenied = errors.New("access denied")

// Depot is the daemon state: the four stores, the access evaluator,
// and the loaded configuration.
type Depot struct {
	config     *config.Config
	principals *principal.Store
	ledger     *ledger.Store
	attributes *attribute.Store
	payloads   *payload.Store
	evaluator  *authorization.Evaluator
	clock      clock.Clock
	logger     *slog.Logger
}

// registerActions registers every socket action. Object actions and
// attribute values route through the evaluator; administration
// actions gate on manage_users or managing_attributes.
func (d *Depot) registerActions(server *service.SocketServer) {
	server.Handle("status", d.handleStatus)
	server.Handle("authorize", d.handleAuthorize)

	server.Handle("object/upload", d.handleUpload)
	server.Handle("object/get", d.handleGet)
	server.Handle("object/parents", d.handleAddParent)
	server.Handle("object/remove", d.handleRemove)
	server.Handle("object/share", d.handleShare)
	server.Handle("object/ancestors", d.handleAncestors)
	server.Handle("object/descendants", d.handleDescendants)

	server.Handle("attribute/list", d.handleAttributeList)
	server.Handle("attribute/add", d.handleAttributeAdd)
	server.Handle("attribute/remove", d.handleAttributeRemove)
	server.Handle("attribute/search", d.handleAttributeSearch)

	server.Handle("key/declare", d.handleKeyDeclare)
	server.Handle("key/acl", d.handleKeyACL)
	server.Handle("key/list", d.handleKeyList)

	server.Handle("group/create", d.handleGroupCreate)
	server.Handle("group/capabilities", d.handleGroupCapabilities)
	server.Handle("group/member", d.handleGroupMember)
	server.Handle("user/create", d.handleUserCreate)
}

// decode unmarshals the raw request into the action's request type.
// Caller identity is extracted separately by user.
func decode[T any](raw []byte, request *T) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// user extracts the acting user from a raw request.
func user(raw []byte) (string, error) {
	var envelope wire.Request
	if err := codec.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}
	if envelope.User == "" {
		return "", errors.New("missing required field: user")
	}
	return envelope.User, nil
}

// require authorizes the action and collapses denials into the
// uniform wire error.
func (d *Depot) require(ctx context.Context, user string, target authorization.Target, action authorization.Action) error {
	result, err := d.evaluator.Authorize(ctx, user, target, action)
	if err != nil {
		return err
	}
	if !result.Allowed() {
		return errAccessDenied
	}
	return nil
}

// parseID parses a hex object identifier from the wire.
func parseID(hex string) (objectid.ID, error) {
	id, err := objectid.Parse(hex)
	if err != nil {
		return objectid.ID{}, fmt.Errorf("invalid object identifier: %w", err)
	}
	return id, nil
}

// objectInfo converts a ledger record to its wire form.
func objectInfo(object ledger.Object) wire.ObjectInfo {
	return wire.ObjectInfo{
		ID:        object.ID.String(),
		Kind:      object.Kind.String(),
		Uploader:  object.Uploader,
		CreatedAt: object.CreatedAt,
	}
}
