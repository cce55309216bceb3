// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/depot/lib/attribute"
	"github.com/bureau-foundation/depot/lib/capability"
	"github.com/bureau-foundation/depot/lib/ledger"
	"github.com/bureau-foundation/depot/lib/objectid"
	"github.com/bureau-foundation/depot/lib/principal"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny is the zero value: a decision that was never computed
	// denies.
	Deny Decision = iota
	// Allow permits the action.
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason explains a denial. Reasons are for logs and tests; the
// service layer must not let distinct reasons produce distinct client
// responses for object-scoped actions.
type DenyReason int

const (
	// ReasonNone is set on allowed results.
	ReasonNone DenyReason = iota
	// ReasonUnknownUser means the user does not exist.
	ReasonUnknownUser
	// ReasonNotVisible means no group of the user can see the target
	// object. Absent objects produce this same reason.
	ReasonNotVisible
	// ReasonMissingCapability means no group of the user carries the
	// capability the action requires.
	ReasonMissingCapability
	// ReasonMissingKeyACL means the attribute key's access list does
	// not permit the operation for any of the user's groups, and the
	// user holds no bypass capability. Undeclared keys produce this
	// same reason.
	ReasonMissingKeyACL
)

var denyReasonNames = [...]string{
	ReasonNone:              "none",
	ReasonUnknownUser:       "unknown_user",
	ReasonNotVisible:        "not_visible",
	ReasonMissingCapability: "missing_capability",
	ReasonMissingKeyACL:     "missing_key_acl",
}

func (r DenyReason) String() string {
	if r < 0 || int(r) >= len(denyReasonNames) {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return denyReasonNames[r]
}

// Target identifies what an action operates on. Object is zero for
// actions without an object (uploads, key and user management); Key is
// empty for actions without an attribute key.
type Target struct {
	Object objectid.ID
	Key    string
}

// Result is a computed decision plus the evidence behind it.
type Result struct {
	// Decision is allow or deny.
	Decision Decision

	// Reason is set on denials.
	Reason DenyReason

	// Capability is the capability the rule required, set whether the
	// check passed or failed. Zero when the rule required none.
	Capability capability.Capability

	// Groups is the group names from the principal snapshot the
	// decision was computed against.
	Groups []string
}

// Allowed reports whether the result permits the action.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// Evaluator computes access decisions from the three stores.
type Evaluator struct {
	principals *principal.Store
	ledger     *ledger.Store
	attributes *attribute.Store
	logger     *slog.Logger
}

// EvaluatorConfig configures an Evaluator. All three stores are
// required.
type EvaluatorConfig struct {
	Principals *principal.Store
	Ledger     *ledger.Store
	Attributes *attribute.Store

	// Logger receives a debug record per denial. Nil discards.
	Logger *slog.Logger
}

// NewEvaluator builds an evaluator over the given stores.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if cfg.Principals == nil || cfg.Ledger == nil || cfg.Attributes == nil {
		return nil, errors.New("authorization: evaluator requires principal, ledger, and attribute stores")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{
		principals: cfg.Principals,
		ledger:     cfg.Ledger,
		attributes: cfg.Attributes,
		logger:     logger,
	}, nil
}

// Authorize decides whether user may perform action on target. The
// error return is for store failures only; policy outcomes, including
// unknown users and absent objects, come back as a Result.
//
// Checks run in a fixed order: principal resolution, then visibility,
// then capability, then the attribute-key access list. Visibility runs
// first so that a capability denial never reveals the existence of an
// object the user cannot see.
func (e *Evaluator) Authorize(ctx context.Context, user string, target Target, action Action) (Result, error) {
	if action < 0 || action >= actionCount {
		return Result{}, fmt.Errorf("authorization: invalid action %d", int(action))
	}
	r := rules[action]
	result := Result{Capability: r.capability}

	snapshot, err := e.principals.Resolve(ctx, user)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return e.deny(result, user, target, action, ReasonUnknownUser), nil
		}
		return Result{}, fmt.Errorf("authorization: resolve %q: %w", user, err)
	}
	result.Groups = snapshot.GroupNames()

	if r.needsVisibility {
		visible, err := e.ledger.CanSee(ctx, result.Groups, target.Object)
		if err != nil {
			return Result{}, fmt.Errorf("authorization: visibility of %s: %w", target.Object, err)
		}
		if !visible {
			return e.deny(result, user, target, action, ReasonNotVisible), nil
		}
	}

	if r.capability != 0 && !snapshot.Capabilities.Has(r.capability) {
		return e.deny(result, user, target, action, ReasonMissingCapability), nil
	}

	if r.key != keyNone && !snapshot.Capabilities.Has(r.bypass) {
		permitted, err := e.keyPermitted(ctx, target.Key, result.Groups, r.key)
		if err != nil {
			return Result{}, err
		}
		if !permitted {
			return e.deny(result, user, target, action, ReasonMissingKeyACL), nil
		}
	}

	result.Decision = Allow
	return result, nil
}

func (e *Evaluator) keyPermitted(ctx context.Context, key string, groups []string, requirement keyRequirement) (bool, error) {
	var permitted bool
	var err error
	switch requirement {
	case keyRead:
		permitted, err = e.attributes.CanRead(ctx, key, groups)
	case keySet:
		permitted, err = e.attributes.CanSet(ctx, key, groups)
	default:
		return false, fmt.Errorf("authorization: invalid key requirement %d", int(requirement))
	}
	if errors.Is(err, attribute.ErrNotFound) {
		// Undeclared keys deny the same way a missing ACL row does so
		// that probing cannot distinguish the two.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("authorization: key acl for %q: %w", key, err)
	}
	return permitted, nil
}

func (e *Evaluator) deny(result Result, user string, target Target, action Action, reason DenyReason) Result {
	result.Decision = Deny
	result.Reason = reason
	attrs := []any{
		slog.String("user", user),
		slog.String("action", action.String()),
		slog.String("reason", reason.String()),
	}
	if !target.Object.IsZero() {
		attrs = append(attrs, slog.String("object", target.Object.String()))
	}
	if target.Key != "" {
		attrs = append(attrs, slog.String("key", target.Key))
	}
	e.logger.Debug("authorization denied", attrs...)
	return result
}
