// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/depot/lib/capability"
	"github.com/bureau-foundation/depot/lib/ledger"
	"github.com/bureau-foundation/depot/lib/objectid"
	"github.com/bureau-foundation/depot/lib/principal"
)

// AutoShareOnLookup grants the object to every group of the user that
// carries the share_queried_objects capability, recording each grant
// with the auto-query reason. It returns the names of the groups that
// received a new grant; groups that could already see the object are
// skipped without a new share record.
//
// The service layer invokes this before the visibility check of a
// direct-by-identifier lookup, so the grant is what makes the lookup
// succeed for such groups. Absent objects are a silent no-op: the
// subsequent visibility check denies them the same way it denies
// invisible ones.
//
// Grants are idempotent, so concurrent lookups of the same object by
// members of the same group converge on one share record.
func (e *Evaluator) AutoShareOnLookup(ctx context.Context, user string, object objectid.ID) ([]string, error) {
	snapshot, err := e.principals.Resolve(ctx, user)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("authorization: resolve %q: %w", user, err)
	}

	var granted []string
	for _, group := range snapshot.Groups {
		if !group.Capabilities.Has(capability.ShareQueriedObjects) {
			continue
		}
		visible, err := e.ledger.CanSee(ctx, []string{group.Name}, object)
		if err != nil {
			return granted, fmt.Errorf("authorization: visibility of %s: %w", object, err)
		}
		if visible {
			continue
		}
		err = e.ledger.Grant(ctx, object, group.Name, ledger.ReasonAutoQuery)
		if errors.Is(err, ledger.ErrNotFound) {
			return granted, nil
		}
		if err != nil {
			return granted, fmt.Errorf("authorization: auto-share %s to %q: %w", object, group.Name, err)
		}
		granted = append(granted, group.Name)
		e.logger.Info("auto-shared on lookup",
			slog.String("object", object.String()),
			slog.String("group", group.Name),
			slog.String("user", user))
	}
	return granted, nil
}

// EveryoneGroups returns the groups that must receive an automatic
// grant on every newly created object: those carrying the
// access_all_objects capability at creation time. The caller passes
// these to the ledger as creation shares, which is what makes the
// capability non-retroactive — objects created before a group gained
// it are untouched.
func (e *Evaluator) EveryoneGroups(ctx context.Context) ([]ledger.Share, error) {
	names, err := e.principals.GroupsWithCapability(ctx, capability.AccessAllObjects)
	if err != nil {
		return nil, fmt.Errorf("authorization: groups with access_all_objects: %w", err)
	}
	shares := make([]ledger.Share, len(names))
	for i, name := range names {
		shares[i] = ledger.Share{Group: name, Reason: ledger.ReasonAutoEverything}
	}
	return shares, nil
}
