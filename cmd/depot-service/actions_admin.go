// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"

	"github.com/bureau-foundation/depot/lib/attribute"
	"github.com/bureau-foundation/depot/lib/authorization"
	"github.com/bureau-foundation/depot/lib/capability"
	"github.com/bureau-foundation/depot/lib/principal"
	"github.com/bureau-foundation/depot/lib/version"
	"github.com/bureau-foundation/depot/lib/wire"
)

func (d *Depot) handleAttributeList(ctx context.Context, raw []byte) (any, error) {
	var request wire.AttributeListRequest
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
	readingAll := snapshot.Capabilities.Has(capability.ReadingAllAttributes)
	attributes, err := d.attributes.ForObject(ctx, id, snapshot.GroupNames(), readingAll)
	if err != nil {
		return nil, err
	}

	response := wire.AttributeListResponse{Attributes: make([]wire.AttributeInfo, len(attributes))}
	for i, attr := range attributes {
		response.Attributes[i] = wire.AttributeInfo{
			Key:       attr.Key,
			Value:     attr.Value,
			CreatedAt: attr.CreatedAt,
		}
	}
	return response, nil
}

func (d *Depot) handleAttributeAdd(ctx context.Context, raw []byte) (any, error) {
	var request wire.AttributeRequest
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
	target := authorization.Target{Object: id, Key: request.Key}
	if err := d.require(ctx, actor, target, authorization.ActionSetAttribute); err != nil {
		return nil, err
	}
	if err := d.attributes.Add(ctx, id, request.Key, request.Value, actor); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Depot) handleAttributeRemove(ctx context.Context, raw []byte) (any, error) {
	var request wire.AttributeRequest
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
	target := authorization.Target{Object: id, Key: request.Key}
	if err := d.require(ctx, actor, target, authorization.ActionRemoveAttribute); err != nil {
		return nil, err
	}

	// An empty value removes every value under the key.
	if request.Value == "" {
		return nil, d.attributes.RemoveKeyValues(ctx, id, request.Key)
	}
	return nil, d.attributes.Remove(ctx, id, request.Key, request.Value)
}

func (d *Depot) handleAttributeSearch(ctx context.Context, raw []byte) (any, error) {
	var request wire.AttributeSearchRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}

	// Search has no single target object; the gate is the key's read
	// ACL, and each match is then filtered by object visibility.
	snapshot, err := d.principals.Resolve(ctx, actor)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, errAccessDenied
		}
		return nil, err
	}
	readingAll := snapshot.Capabilities.Has(capability.ReadingAllAttributes)
	if !readingAll {
		canRead, err := d.attributes.CanRead(ctx, request.Key, snapshot.GroupNames())
		if err != nil || !canRead {
			return nil, errAccessDenied
		}
	}

	matches, err := d.attributes.Search(ctx, request.Key, request.Query, !request.Wildcard, readingAll)
	if err != nil {
		return nil, err
	}

	groups := snapshot.GroupNames()
	response := wire.AttributeSearchResponse{}
	for _, match := range matches {
		visible, err := d.ledger.CanSee(ctx, groups, match.Object)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		response.Matches = append(response.Matches, wire.AttributeMatch{
			ID:    match.Object.String(),
			Key:   match.Key,
			Value: match.Value,
		})
	}
	return response, nil
}

func (d *Depot) handleKeyDeclare(ctx context.Context, raw []byte) (any, error) {
	var request wire.KeyDeclareRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, authorization.ActionManageAttributes); err != nil {
		return nil, err
	}

	stored, err := d.attributes.DeclareKey(ctx, attribute.KeyDefinition{
		Name:        request.Name,
		Label:       request.Label,
		Description: request.Description,
		URLTemplate: request.URLTemplate,
		Hidden:      request.Hidden,
	})
	if err != nil {
		return nil, err
	}
	return wire.KeyInfo{
		Name:        stored.Name,
		Label:       stored.Label,
		Description: stored.Description,
		URLTemplate: stored.URLTemplate,
		Hidden:      stored.Hidden,
	}, nil
}

func (d *Depot) handleKeyACL(ctx context.Context, raw []byte) (any, error) {
	var request wire.KeyACLRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, authorization.ActionManageAttributes); err != nil {
		return nil, err
	}
	if _, err := d.principals.Group(ctx, request.Group); err != nil {
		return nil, err
	}
	if request.Remove {
		return nil, d.attributes.RemoveACL(ctx, request.Name, request.Group)
	}
	return nil, d.attributes.SetACL(ctx, request.Name, request.Group, request.CanRead, request.CanSet)
}

func (d *Depot) handleKeyList(ctx context.Context, raw []byte) (any, error) {
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	snapshot, err := d.principals.Resolve(ctx, actor)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, errAccessDenied
		}
		return nil, err
	}
	readingAll := snapshot.Capabilities.Has(capability.ReadingAllAttributes)

	keys, err := d.attributes.Keys(ctx)
	if err != nil {
		return nil, err
	}
	response := wire.KeyListResponse{}
	for _, key := range keys {
		// Hidden key definitions are visible only to holders of
		// reading_all_attributes.
		if key.Hidden && !readingAll {
			continue
		}
		response.Keys = append(response.Keys, wire.KeyInfo{
			Name:        key.Name,
			Label:       key.Label,
			Description: key.Description,
			URLTemplate: key.URLTemplate,
			Hidden:      key.Hidden,
		})
	}
	return response, nil
}

func (d *Depot) handleGroupCreate(ctx context.Context, raw []byte) (any, error) {
	var request wire.GroupRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, authorization.ActionManageUsers); err != nil {
		return nil, err
	}
	capabilities, err := capability.ParseSet(request.Capabilities)
	if err != nil {
		return nil, err
	}
	group, err := d.principals.CreateGroup(ctx, request.Name, capabilities)
	if err != nil {
		return nil, err
	}
	return wire.GroupInfo{
		Name:         group.Name,
		Capabilities: group.Capabilities.Names(),
		Private:      group.Private,
	}, nil
}

func (d *Depot) handleGroupCapabilities(ctx context.Context, raw []byte) (any, error) {
	var request wire.GroupRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, authorization.ActionManageUsers); err != nil {
		return nil, err
	}
	capabilities, err := capability.ParseSet(request.Capabilities)
	if err != nil {
		return nil, err
	}
	return nil, d.principals.SetCapabilities(ctx, request.Name, capabilities)
}

func (d *Depot) handleGroupMember(ctx context.Context, raw []byte) (any, error) {
	var request wire.MemberRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, authorization.ActionManageUsers); err != nil {
		return nil, err
	}
	if request.Remove {
		return nil, d.principals.RemoveMember(ctx, request.Group, request.Member)
	}
	return nil, d.principals.AddMember(ctx, request.Group, request.Member)
}

func (d *Depot) handleUserCreate(ctx context.Context, raw []byte) (any, error) {
	var request wire.UserRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	if err := d.require(ctx, actor, authorization.Target{}, authorization.ActionManageUsers); err != nil {
		return nil, err
	}
	created, err := d.principals.CreateUser(ctx, request.Name)
	if err != nil {
		return nil, err
	}
	d.logger.Info("user created", "user", created.Name, "by", actor)
	return nil, nil
}

func (d *Depot) handleAuthorize(ctx context.Context, raw []byte) (any, error) {
	var request wire.AuthorizeRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	actor, err := user(raw)
	if err != nil {
		return nil, err
	}
	action, err := authorization.ParseAction(request.CheckAction)
	if err != nil {
		return nil, err
	}
	target := authorization.Target{Key: request.Key}
	if request.ID != "" {
		target.Object, err = parseID(request.ID)
		if err != nil {
			return nil, err
		}
	}
	result, err := d.evaluator.Authorize(ctx, actor, target, action)
	if err != nil {
		return nil, err
	}
	return wire.AuthorizeResponse{Allowed: result.Allowed()}, nil
}

func (d *Depot) handleStatus(ctx context.Context, raw []byte) (any, error) {
	response := wire.StatusResponse{Version: version.Short()}

	// Identity echo is best-effort: an unknown or absent user still
	// gets a liveness answer.
	var envelope wire.Request
	if err := decode(raw, &envelope); err == nil && envelope.User != "" {
		snapshot, err := d.principals.Resolve(ctx, envelope.User)
		if err == nil {
			response.User = snapshot.User
			response.Groups = snapshot.GroupNames()
		}
	}
	return response, nil
}
