// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attribute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/objectid"
)

// Add attaches a value under a declared key. Multiple values per key
// are allowed; re-adding an existing (object, key, value) triple is a
// no-op. Fails with ErrNotFound if the key is not declared. The
// caller is responsible for having authorized the write (object
// visibility plus can_set on the key).
func (s *Store) Add(ctx context.Context, object objectid.ID, key, value, adder string) error {
	key = NormalizeKey(key)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("attribute store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if _, err = s.keyOn(conn, key); err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `
		INSERT OR IGNORE INTO attributes (object, key_name, value, adder, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			object.String(), key, value, adder, s.clock.Now().UnixNano(),
		}})
	if err != nil {
		return fmt.Errorf("attribute store: adding %s on %s: %w", key, object, err)
	}
	return nil
}

// Remove deletes one (object, key, value) triple. Removing an absent
// triple is a no-op. Removal is key-scoped: values carry no owner, so
// authorization happens at the key level before this call.
func (s *Store) Remove(ctx context.Context, object objectid.ID, key, value string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM attributes WHERE object = ? AND key_name = ? AND value = ?`,
		&sqlitex.ExecOptions{Args: []any{object.String(), NormalizeKey(key), value}})
	if err != nil {
		return fmt.Errorf("attribute store: removing %s on %s: %w", key, object, err)
	}
	return nil
}

// RemoveKeyValues deletes every value an object carries under one
// key. Removing from an object with no values under the key is a
// no-op.
func (s *Store) RemoveKeyValues(ctx context.Context, object objectid.ID, key string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM attributes WHERE object = ? AND key_name = ?`,
		&sqlitex.ExecOptions{Args: []any{object.String(), NormalizeKey(key)}})
	if err != nil {
		return fmt.Errorf("attribute store: removing %s values on %s: %w", key, object, err)
	}
	return nil
}

// RemoveObject deletes every attribute of an object. Called from the
// object-removal cascade.
func (s *Store) RemoveObject(ctx context.Context, object objectid.ID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM attributes WHERE object = ?`,
		&sqlitex.ExecOptions{Args: []any{object.String()}})
	if err != nil {
		return fmt.Errorf("attribute store: removing attributes of %s: %w", object, err)
	}
	return nil
}

// ForObject returns the object's attributes filtered to what the
// reader may see: keys with a can_read row for one of the reader's
// groups, hidden keys excluded. readingAll (the
// reading_all_attributes capability) bypasses both filters.
func (s *Store) ForObject(ctx context.Context, object objectid.ID, groups []string, readingAll bool) ([]Attribute, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	bypass := 0
	if readingAll {
		bypass = 1
	}
	if len(groups) == 0 {
		// The IN clause needs at least one operand; no real group is
		// named the empty string.
		groups = []string{""}
	}

	args := make([]any, 0, len(groups)+3)
	args = append(args, object.String(), bypass, bypass)
	for _, group := range groups {
		args = append(args, group)
	}

	var attributes []Attribute
	err = sqlitex.Execute(conn, `
		SELECT a.object, a.key_name, a.value, a.adder, a.created_at
		FROM attributes a JOIN attribute_keys k ON k.name = a.key_name
		WHERE a.object = ?
		  AND (k.hidden = 0 OR ? = 1)
		  AND (? = 1 OR EXISTS (
			SELECT 1 FROM attribute_acls acl
			WHERE acl.key_name = a.key_name AND acl.can_read = 1
			  AND acl.group_name IN (`+placeholders(len(groups))+`)))
		ORDER BY a.key_name, a.value`,
		&sqlitex.ExecOptions{
			Args:       args,
			ResultFunc: scanAttribute(&attributes),
		})
	if err != nil {
		return nil, fmt.Errorf("attribute store: attributes of %s: %w", object, err)
	}
	return attributes, nil
}

// Search finds attributes under one key whose value matches the
// query. With exact=true the value must match byte for byte; this
// works on hidden keys (confirming a value the caller already knows
// is allowed). With exact=false the query is a wildcard pattern ("*"
// matches any run of characters), and hidden keys return nothing
// unless readingAll is set — wildcard search must not enumerate
// hidden values.
//
// Search does not consult object visibility; the caller filters hits
// through the ledger before returning them to a user.
func (s *Store) Search(ctx context.Context, key, query string, exact, readingAll bool) ([]Attribute, error) {
	key = NormalizeKey(key)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	def, err := s.keyOn(conn, key)
	if err != nil {
		return nil, err
	}
	if def.Hidden && !exact && !readingAll {
		// Concealment, not an error: the caller cannot tell a hidden
		// key's empty wildcard result from a key with no matches.
		return nil, nil
	}

	var attributes []Attribute
	if exact {
		err = sqlitex.Execute(conn, `
			SELECT object, key_name, value, adder, created_at FROM attributes
			WHERE key_name = ? AND value = ? ORDER BY object`,
			&sqlitex.ExecOptions{
				Args:       []any{key, query},
				ResultFunc: scanAttribute(&attributes),
			})
	} else {
		err = sqlitex.Execute(conn, `
			SELECT object, key_name, value, adder, created_at FROM attributes
			WHERE key_name = ? AND value LIKE ? ESCAPE '\' ORDER BY object`,
			&sqlitex.ExecOptions{
				Args:       []any{key, wildcardToLike(query)},
				ResultFunc: scanAttribute(&attributes),
			})
	}
	if err != nil {
		return nil, fmt.Errorf("attribute store: searching %s: %w", key, err)
	}
	return attributes, nil
}

// wildcardToLike converts a "*"-wildcard pattern to a SQL LIKE
// pattern, escaping LIKE's own metacharacters in the literal parts.
func wildcardToLike(pattern string) string {
	var builder strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			builder.WriteByte('%')
		case '%', '_', '\\':
			builder.WriteByte('\\')
			builder.WriteByte(pattern[i])
		default:
			builder.WriteByte(pattern[i])
		}
	}
	return builder.String()
}

func scanAttribute(out *[]Attribute) func(*sqlite.Stmt) error {
	return func(stmt *sqlite.Stmt) error {
		object, err := objectid.Parse(stmt.ColumnText(0))
		if err != nil {
			return err
		}
		*out = append(*out, Attribute{
			Object:    object,
			Key:       stmt.ColumnText(1),
			Value:     stmt.ColumnText(2),
			Adder:     stmt.ColumnText(3),
			CreatedAt: time.Unix(0, stmt.ColumnInt64(4)),
		})
		return nil
	}
}
