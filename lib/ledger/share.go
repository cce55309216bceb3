// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/objectid"
)

// Grant records a ShareRecord for (object, group) and inserts the
// group into the effective-visibility set of the object and every
// descendant, in one transaction. Idempotent: re-granting keeps the
// original record and re-runs the (monotonic) propagation, so a
// partially-propagated grant is repaired by retrying. Fails with
// ErrNotFound if the object is absent.
func (s *Store) Grant(ctx context.Context, object objectid.ID, group string, reason Reason) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("ledger: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	exists, err := s.objectExists(conn, object)
	if err != nil {
		return err
	}
	if !exists {
		err = fmt.Errorf("ledger: object %s: %w", object, ErrNotFound)
		return err
	}

	if err = s.applyGrant(conn, object, group, reason); err != nil {
		return err
	}

	s.logger.Info("share granted",
		"object", object.String(),
		"group", group,
		"reason", string(reason),
	)
	return nil
}

// applyGrant inserts the ShareRecord and propagates the group into
// the descendant closure's effective sets. Must run inside a
// transaction opened by the caller.
func (s *Store) applyGrant(conn *sqlite.Conn, object objectid.ID, group string, reason Reason) error {
	err := sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO shares (object, group_name, reason, created_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{object.String(), group, string(reason), s.clock.Now().UnixNano()}})
	if err != nil {
		return fmt.Errorf("ledger: recording share of %s with %s: %w", object, group, err)
	}

	if err := s.checkFanout(conn, object); err != nil {
		return err
	}
	err = sqlitex.Execute(conn, `
		WITH RECURSIVE closure(id) AS (
			SELECT ?
			UNION
			SELECT e.child FROM edges e JOIN closure c ON e.parent = c.id
		)
		INSERT OR IGNORE INTO visible (object, group_name)
		SELECT id, ? FROM closure`,
		&sqlitex.ExecOptions{Args: []any{object.String(), group}})
	if err != nil {
		return fmt.Errorf("ledger: propagating share of %s with %s: %w", object, group, err)
	}
	return nil
}

// CanSee reports whether any of the groups is in the object's
// effective-visibility set. An absent object reports false rather
// than an error: the caller cannot distinguish "not visible" from
// "does not exist" through this path.
func (s *Store) CanSee(ctx context.Context, groups []string, object objectid.ID) (bool, error) {
	if len(groups) == 0 {
		return false, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groups)), ",")
	args := make([]any, 0, len(groups)+1)
	args = append(args, object.String())
	for _, group := range groups {
		args = append(args, group)
	}

	var visible bool
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM visible WHERE object = ? AND group_name IN (`+placeholders+`) LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(*sqlite.Stmt) error {
				visible = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("ledger: visibility of %s: %w", object, err)
	}
	return visible, nil
}

// Shares returns the direct ShareRecords on the object, oldest first.
// Fails with ErrNotFound if the object is absent.
func (s *Store) Shares(ctx context.Context, object objectid.ID) ([]ShareRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	exists, err := s.objectExists(conn, object)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("ledger: object %s: %w", object, ErrNotFound)
	}

	var records []ShareRecord
	err = sqlitex.Execute(conn,
		`SELECT object, group_name, reason, created_at FROM shares
		 WHERE object = ? ORDER BY created_at, group_name`,
		&sqlitex.ExecOptions{
			Args: []any{object.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id, parseErr := objectid.Parse(stmt.ColumnText(0))
				if parseErr != nil {
					return parseErr
				}
				records = append(records, ShareRecord{
					Object:    id,
					Group:     stmt.ColumnText(1),
					Reason:    Reason(stmt.ColumnText(2)),
					CreatedAt: time.Unix(0, stmt.ColumnInt64(3)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: shares of %s: %w", object, err)
	}
	return records, nil
}

// VisibleGroups returns the object's current effective-visibility
// set, sorted. Fails with ErrNotFound if the object is absent.
func (s *Store) VisibleGroups(ctx context.Context, object objectid.ID) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	exists, err := s.objectExists(conn, object)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("ledger: object %s: %w", object, ErrNotFound)
	}

	var groups []string
	err = sqlitex.Execute(conn,
		`SELECT group_name FROM visible WHERE object = ? ORDER BY group_name`,
		&sqlitex.ExecOptions{
			Args: []any{object.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				groups = append(groups, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: visible groups of %s: %w", object, err)
	}
	return groups, nil
}
