// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/depot/lib/attribute"
	"github.com/bureau-foundation/depot/lib/capability"
	"github.com/bureau-foundation/depot/lib/principal"
)

// Document is a declarative description of groups, users, and
// attribute keys.
type Document struct {
	// Groups declares shared groups and their capabilities.
	Groups []GroupDecl `json:"groups"`

	// Users declares users and their group memberships.
	Users []UserDecl `json:"users"`

	// AttributeKeys declares attribute keys and their access lists.
	AttributeKeys []KeyDecl `json:"attribute_keys"`
}

// GroupDecl declares one group.
type GroupDecl struct {
	Name string `json:"name"`

	// Capabilities is the group's capability set by wire name. The
	// declared set replaces the existing one on re-apply.
	Capabilities []string `json:"capabilities"`
}

// UserDecl declares one user.
type UserDecl struct {
	Name string `json:"name"`

	// Groups is the shared groups the user belongs to. Memberships
	// absent from the declaration are left alone.
	Groups []string `json:"groups"`
}

// KeyDecl declares one attribute key.
type KeyDecl struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	URLTemplate string    `json:"url_template"`
	Hidden      bool      `json:"hidden"`
	ACLs        []ACLDecl `json:"acls"`
}

// ACLDecl declares one group's access to a key.
type ACLDecl struct {
	Group string `json:"group"`
	Read  bool   `json:"read"`
	Set   bool   `json:"set"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Document.
func Parse(data []byte) (*Document, error) {
	stripped := jsonc.ToJSON(data)

	var document Document
	if err := json.Unmarshal(stripped, &document); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return &document, nil
}

// ReadFile reads a JSONC seed file from disk and parses it.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	document, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return document, nil
}

// Validate checks the document for errors before anything is applied:
// name rules, known capability names, and user memberships that
// reference declared or reserved groups.
func (d *Document) Validate() error {
	var errs []error

	declared := map[string]bool{
		principal.Public:     true,
		principal.Everything: true,
	}
	for _, group := range d.Groups {
		if err := principal.ValidateName(group.Name); err != nil {
			errs = append(errs, fmt.Errorf("group %q: %w", group.Name, err))
		}
		if _, err := capability.ParseSet(group.Capabilities); err != nil {
			errs = append(errs, fmt.Errorf("group %q: %w", group.Name, err))
		}
		declared[group.Name] = true
	}

	for _, user := range d.Users {
		if err := principal.ValidateName(user.Name); err != nil {
			errs = append(errs, fmt.Errorf("user %q: %w", user.Name, err))
		}
		for _, group := range user.Groups {
			if !declared[group] {
				errs = append(errs, fmt.Errorf("user %q: membership in undeclared group %q", user.Name, group))
			}
		}
	}

	for _, key := range d.AttributeKeys {
		if err := attribute.ValidateKey(attribute.NormalizeKey(key.Name)); err != nil {
			errs = append(errs, fmt.Errorf("attribute key %q: %w", key.Name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Applier applies seed documents to the principal and attribute
// stores.
type Applier struct {
	Principals *principal.Store
	Attributes *attribute.Store

	// Logger receives one record per applied declaration. Nil
	// discards.
	Logger *slog.Logger
}

// Apply brings the stores to the declared state. Existing groups get
// the declared capability set, existing users gain any missing
// declared memberships, and existing keys are merged with the
// declared definition. Nothing is deleted: undeclared principals,
// memberships, and keys are left alone.
func (a *Applier) Apply(ctx context.Context, document *Document) error {
	if err := document.Validate(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for _, decl := range document.Groups {
		capabilities, err := capability.ParseSet(decl.Capabilities)
		if err != nil {
			return fmt.Errorf("seed: group %q: %w", decl.Name, err)
		}
		_, err = a.Principals.CreateGroup(ctx, decl.Name, capabilities)
		switch {
		case errors.Is(err, principal.ErrExists):
			if err := a.Principals.SetCapabilities(ctx, decl.Name, capabilities); err != nil {
				return fmt.Errorf("seed: group %q: %w", decl.Name, err)
			}
		case err != nil:
			return fmt.Errorf("seed: group %q: %w", decl.Name, err)
		}
		logger.Info("seeded group", "group", decl.Name, "capabilities", capabilities.String())
	}

	for _, decl := range document.Users {
		_, err := a.Principals.CreateUser(ctx, decl.Name)
		if err != nil && !errors.Is(err, principal.ErrExists) {
			return fmt.Errorf("seed: user %q: %w", decl.Name, err)
		}
		for _, group := range decl.Groups {
			if group == principal.Public {
				continue
			}
			if err := a.Principals.AddMember(ctx, group, decl.Name); err != nil {
				return fmt.Errorf("seed: user %q in group %q: %w", decl.Name, group, err)
			}
		}
		logger.Info("seeded user", "user", decl.Name, "groups", decl.Groups)
	}

	for _, decl := range document.AttributeKeys {
		definition := attribute.KeyDefinition{
			Name:        decl.Name,
			Label:       decl.Label,
			Description: decl.Description,
			URLTemplate: decl.URLTemplate,
			Hidden:      decl.Hidden,
		}
		stored, err := a.Attributes.DeclareKey(ctx, definition)
		if err != nil {
			return fmt.Errorf("seed: attribute key %q: %w", decl.Name, err)
		}
		for _, acl := range decl.ACLs {
			if err := a.Attributes.SetACL(ctx, stored.Name, acl.Group, acl.Read, acl.Set); err != nil {
				return fmt.Errorf("seed: attribute key %q acl for %q: %w", decl.Name, acl.Group, err)
			}
		}
		logger.Info("seeded attribute key", "key", stored.Name, "acls", len(decl.ACLs))
	}

	return nil
}
