// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/depot/lib/authorization"
	"github.com/bureau-foundation/depot/lib/ledger"
	"github.com/bureau-foundation/depot/lib/objectid"
	"github.com/bureau-foundation/depot/lib/wire"
)

// uploadActions maps object kind to the capability-gated upload
// action. Plain files are open to every user.
var uploadActions = map[objectid.Kind]authorization.Action{
	objectid.KindFile:   authorization.ActionUploadFile,
	objectid.KindConfig: authorization.ActionUploadConfig,
	objectid.KindBlob:   authorization.ActionUploadBlob,
}

func (d *Depot) handleUpload(ctx context.Context, raw []byte) (any, error) {
	var request wire.UploadRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}

	kind, err := objectid.ParseKind(request.Kind)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, uploadActions[kind]); err != nil {
		return nil, err
	}
	if int64(len(request.Content)) > d.config.Limits.MaxPayloadBytes {
		return nil, fmt.Errorf("payload is %d bytes, limit is %d",
			len(request.Content), d.config.Limits.MaxPayloadBytes)
	}

	// Declaring a parent requires seeing it. Invisible and absent
	// parents produce the same denial.
	parents := make([]objectid.ID, len(request.Parents))
	for i, hex := range request.Parents {
		parent, err := parseID(hex)
		if err != nil {
			return nil, err
		}
		if err := d.require(ctx, actor, authorization.Target{Object: parent}, authorization.ActionViewObject); err != nil {
			return nil, err
		}
		parents[i] = parent
	}

	// The uploader's private group always receives the upload grant.
	// Additional groups must be groups the uploader belongs to.
	snapshot, err := d.principals.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	shares := []ledger.Share{{Group: actor, Reason: ledger.ReasonUpload}}
	for _, group := range request.ShareWith {
		if group == actor {
			continue
		}
		if !snapshot.Member(group) {
			return nil, errAccessDenied
		}
		shares = append(shares, ledger.Share{Group: group, Reason: ledger.ReasonUpload})
	}

	// Groups holding access_all_objects right now receive their grant
	// at creation; granting the capability later reveals nothing
	// retroactively.
	everyone, err := d.evaluator.EveryoneGroups(ctx)
	if err != nil {
		return nil, err
	}
	shares = append(shares, everyone...)

	id := objectid.Compute(kind, request.Content)
	if err := d.payloads.Put(ctx, id, kind, request.Content); err != nil {
		return nil, err
	}
	created, err := d.ledger.CreateObject(ctx, id, kind, actor, parents, shares)
	if err != nil {
		var cycle *ledger.CycleError
		if errors.As(err, &cycle) {
			return nil, fmt.Errorf("derivation cycle: %s is an ancestor of %s", cycle.Child, cycle.Parent)
		}
		return nil, err
	}

	object, err := d.ledger.Object(ctx, id)
	if err != nil {
		return nil, err
	}
	d.logger.Info("object uploaded",
		"object", id.String(),
		"kind", kind.String(),
		"user", actor,
		"created", created,
	)
	return wire.UploadResponse{Object: objectInfo(object), Created: created}, nil
}

func (d *Depot) handleGet(ctx context.Context, raw []byte) (any, error) {
	var request wire.ObjectRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	id, err := parseID(request.ID)
	if err != nil {
		return nil, err
	}

	// Sharing-on-query runs before the visibility check: for groups
	// carrying share_queried_objects, the lookup itself is what grants
	// access. Disabled deployments skip straight to the check.
	if d.config.Policy.AutoShareOnLookup {
		if _, err := d.evaluator.AutoShareOnLookup(ctx, actor, id); err != nil {
			return nil, err
		}
	}
	if err := d.require(ctx, actor, authorization.Target{Object: id}, authorization.ActionViewObject); err != nil {
		return nil, err
	}

	object, err := d.ledger.Object(ctx, id)
	if err != nil {
		return nil, err
	}
	content, _, err := d.payloads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return wire.GetResponse{Object: objectInfo(object), Content: content}, nil
}

func (d *Depot) handleAddParent(ctx context.Context, raw []byte) (any, error) {
	var request wire.AddParentRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	parent, err := parseID(request.Parent)
	if err != nil {
		return nil, err
	}
	child, err := parseID(request.Child)
	if err != nil {
		return nil, err
	}

	// Both ends must be visible and the caller must hold
	// adding_parents.
	if err := d.require(ctx, actor, authorization.Target{Object: parent}, authorization.ActionAddParent); err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{Object: child}, authorization.ActionAddParent); err != nil {
		return nil, err
	}

	if err := d.ledger.AddParent(ctx, parent, child); err != nil {
		var cycle *ledger.CycleError
		if errors.As(err, &cycle) {
			return nil, fmt.Errorf("derivation cycle: %s is an ancestor of %s", cycle.Child, cycle.Parent)
		}
		if errors.Is(err, ledger.ErrCapacity) {
			return nil, errors.New("derivation graph too large for propagation")
		}
		return nil, err
	}
	d.logger.Info("parent attached", "parent", parent.String(), "child", child.String(), "user", actor)

	parents, err := d.ledger.Parents(ctx, child)
	if err != nil {
		return nil, err
	}
	response := wire.NeighborsResponse{IDs: make([]string, len(parents))}
	for i, p := range parents {
		response.IDs[i] = p.String()
	}
	return response, nil
}

func (d *Depot) handleRemove(ctx context.Context, raw []byte) (any, error) {
	var request wire.ObjectRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	id, err := parseID(request.ID)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{Object: id}, authorization.ActionRemoveObject); err != nil {
		return nil, err
	}

	// Ledger record first: once it is gone the object is unreachable,
	// and the attribute and payload cleanups are idempotent.
	if err := d.ledger.RemoveObject(ctx, id); err != nil {
		return nil, err
	}
	if err := d.attributes.RemoveObject(ctx, id); err != nil {
		return nil, err
	}
	if err := d.payloads.Remove(ctx, id); err != nil {
		return nil, err
	}
	d.logger.Info("object removed", "object", id.String(), "user", actor)
	return nil, nil
}

func (d *Depot) handleShare(ctx context.Context, raw []byte) (any, error) {
	var request wire.ShareRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	id, err := parseID(request.ID)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{Object: id}, authorization.ActionShareObject); err != nil {
		return nil, err
	}
	if _, err := d.principals.Group(ctx, request.Group); err != nil {
		return nil, fmt.Errorf("unknown group %q", request.Group)
	}

	if err := d.ledger.Grant(ctx, id, request.Group, ledger.ReasonAddedLater); err != nil {
		if errors.Is(err, ledger.ErrCapacity) {
			return nil, errors.New("derivation graph too large for propagation")
		}
		return nil, err
	}
	d.logger.Info("object shared", "object", id.String(), "group", request.Group, "user", actor)

	records, err := d.ledger.Shares(ctx, id)
	if err != nil {
		return nil, err
	}
	response := wire.SharesResponse{Shares: make([]wire.ShareInfo, len(records))}
	for i, record := range records {
		response.Shares[i] = wire.ShareInfo{
			Group:     record.Group,
			Reason:    string(record.Reason),
			CreatedAt: record.CreatedAt,
		}
	}
	return response, nil
}

func (d *Depot) handleAncestors(ctx context.Context, raw []byte) (any, error) {
	return d.handleWalk(ctx, raw, d.ledger.Ancestors)
}

func (d *Depot) handleDescendants(ctx context.Context, raw []byte) (any, error) {
	return d.handleWalk(ctx, raw, d.ledger.Descendants)
}

// handleWalk runs a graph traversal and filters the result to objects
// the caller can see. The start object is authorized first; nodes the
// caller cannot see are silently omitted rather than denied, so a
// partial view of the graph looks complete.
func (d *Depot) handleWalk(ctx context.Context, raw []byte, walk func(context.Context, objectid.ID, func(objectid.ID) error) error) (any, error) {
	var request wire.ObjectRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	id, err := parseID(request.ID)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{Object: id}, authorization.ActionViewObject); err != nil {
		return nil, err
	}

	snapshot, err := d.principals.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	groups := snapshot.GroupNames()

	// The traversal holds a pooled connection until it returns, so the
	// callback must not take a second one. Collect the nodes first and
	// run the visibility checks after the walk's connection is back in
	// the pool. The traversal cap bounds the collected set.
	var nodes []objectid.ID
	err = walk(ctx, id, func(node objectid.ID) error {
		nodes = append(nodes, node)
		return nil
	})
	if errors.Is(err, ledger.ErrCapacity) {
		return nil, errors.New("derivation graph too large for traversal")
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		visible, err := d.ledger.CanSee(ctx, groups, node)
		if err != nil {
			return nil, err
		}
		if visible {
			ids = append(ids, node.String())
		}
	}
	return wire.WalkResponse{IDs: ids}, nil
}
