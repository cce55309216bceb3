// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/objectid"
)

// CreateObject records an object node, attaches its parent edges, and
// applies the initial share grants, all in one transaction.
//
// Creation is idempotent on the content-addressed id: if the object
// already exists, the call degrades to attaching any new parents and
// applying any new grants to the existing node (a re-upload of known
// content with new provenance). Each new parent edge is cycle-checked
// against the existing graph and extends the parent's effective
// visibility onto the node and its descendants. Returns whether the
// node was newly created.
func (s *Store) CreateObject(ctx context.Context, id objectid.ID, kind objectid.Kind, uploader string, parents []objectid.ID, shares []Share) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("ledger: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	exists, err := s.objectExists(conn, id)
	if err != nil {
		return false, err
	}
	if !exists {
		err = sqlitex.Execute(conn,
			`INSERT INTO objects (id, kind, uploader, created_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{id.String(), kind.String(), uploader, s.clock.Now().UnixNano()}})
		if err != nil {
			return false, fmt.Errorf("ledger: creating object %s: %w", id, err)
		}
	}

	for _, parent := range parents {
		if err = s.attachParent(conn, parent, id); err != nil {
			return false, err
		}
	}

	for _, share := range shares {
		if err = s.applyGrant(conn, id, share.Group, share.Reason); err != nil {
			return false, err
		}
	}

	if !exists {
		s.logger.Info("object created",
			"object", id.String(),
			"kind", kind.String(),
			"uploader", uploader,
			"parents", len(parents),
		)
	}
	return !exists, nil
}

// AddParent inserts a derivation edge parent -> child and extends the
// parent's effective visibility onto child and all of child's existing
// descendants. Fails with CycleError if parent equals child or is
// already a descendant of child. The cycle check and the insertion
// share one immediate transaction, so two concurrent AddParent calls
// cannot both succeed in closing a cycle. Re-adding an existing edge
// re-runs the (idempotent) propagation and is otherwise a no-op.
func (s *Store) AddParent(ctx context.Context, parent, child objectid.ID) error {
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

	for _, id := range []objectid.ID{parent, child} {
		exists, existsErr := s.objectExists(conn, id)
		if existsErr != nil {
			err = existsErr
			return err
		}
		if !exists {
			err = fmt.Errorf("ledger: object %s: %w", id, ErrNotFound)
			return err
		}
	}

	if err = s.attachParent(conn, parent, child); err != nil {
		return err
	}

	s.logger.Info("edge added", "parent", parent.String(), "child", child.String())
	return nil
}

// attachParent performs the cycle check, edge insertion, and
// visibility extension for one edge. Must run inside a transaction
// opened by the caller. The parent must already exist; the child row
// must already be inserted.
func (s *Store) attachParent(conn *sqlite.Conn, parent, child objectid.ID) error {
	exists, err := s.objectExists(conn, parent)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ledger: parent %s: %w", parent, ErrNotFound)
	}

	if parent == child {
		return &CycleError{Parent: parent, Child: child}
	}
	reachable, err := s.reachable(conn, child, parent)
	if err != nil {
		return err
	}
	if reachable {
		return &CycleError{Parent: parent, Child: child}
	}

	err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO edges (parent, child) VALUES (?, ?)`,
		&sqlitex.ExecOptions{Args: []any{parent.String(), child.String()}})
	if err != nil {
		return fmt.Errorf("ledger: inserting edge %s -> %s: %w", parent, child, err)
	}

	return s.extendOnNewEdge(conn, parent, child)
}

// extendOnNewEdge unions the parent's effective-visibility set into
// the child and every existing descendant of the child. Pure set
// union under INSERT OR IGNORE: idempotent and monotonic, safe to
// re-run after a retried edge insertion.
func (s *Store) extendOnNewEdge(conn *sqlite.Conn, parent, child objectid.ID) error {
	if err := s.checkFanout(conn, child); err != nil {
		return err
	}
	err := sqlitex.Execute(conn, `
		WITH RECURSIVE affected(id) AS (
			SELECT ?
			UNION
			SELECT e.child FROM edges e JOIN affected a ON e.parent = a.id
		)
		INSERT OR IGNORE INTO visible (object, group_name)
		SELECT a.id, v.group_name FROM affected a JOIN visible v ON v.object = ?`,
		&sqlitex.ExecOptions{Args: []any{child.String(), parent.String()}})
	if err != nil {
		return fmt.Errorf("ledger: propagating visibility over %s -> %s: %w", parent, child, err)
	}
	return nil
}

// reachable reports whether target is reachable from start by
// following parent -> child edges, visiting at most the traversal
// limit. Exceeding the limit returns ErrCapacity (fail closed: the
// edge insertion is rejected rather than risked).
func (s *Store) reachable(conn *sqlite.Conn, start, target objectid.ID) (bool, error) {
	var found bool
	visited := 0
	err := sqlitex.Execute(conn, `
		WITH RECURSIVE reach(id) AS (
			SELECT ?
			UNION
			SELECT e.child FROM edges e JOIN reach r ON e.parent = r.id
		)
		SELECT id FROM reach LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{start.String(), s.traversalLimit + 1},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				visited++
				if stmt.ColumnText(0) == target.String() {
					found = true
				}
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("ledger: reachability from %s: %w", start, err)
	}
	if visited > s.traversalLimit {
		return false, fmt.Errorf("ledger: reachability from %s visited %d nodes: %w", start, visited, ErrCapacity)
	}
	return found, nil
}

// checkFanout verifies the descendant closure of id fits within the
// traversal limit before a propagation writes it.
func (s *Store) checkFanout(conn *sqlite.Conn, id objectid.ID) error {
	count := 0
	err := sqlitex.Execute(conn, `
		WITH RECURSIVE closure(id) AS (
			SELECT ?
			UNION
			SELECT e.child FROM edges e JOIN closure c ON e.parent = c.id
		)
		SELECT id FROM closure LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{id.String(), s.traversalLimit + 1},
			ResultFunc: func(*sqlite.Stmt) error {
				count++
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("ledger: sizing closure of %s: %w", id, err)
	}
	if count > s.traversalLimit {
		return fmt.Errorf("ledger: closure of %s exceeds %d nodes: %w", id, s.traversalLimit, ErrCapacity)
	}
	return nil
}

// RemoveObject deletes the object, every edge touching it, and its
// share and visibility rows. Parents and children survive; visibility
// they already inherited through this node is retained (materialized
// grants never silently regress). Fails with ErrNotFound if the
// object is absent.
func (s *Store) RemoveObject(ctx context.Context, id objectid.ID) error {
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

	err = sqlitex.Execute(conn, `DELETE FROM objects WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id.String()}})
	if err != nil {
		return fmt.Errorf("ledger: removing object %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		err = fmt.Errorf("ledger: object %s: %w", id, ErrNotFound)
		return err
	}

	cascade := []string{
		`DELETE FROM edges WHERE parent = ? OR child = ?`,
		`DELETE FROM shares WHERE object = ?`,
		`DELETE FROM visible WHERE object = ?`,
	}
	args := [][]any{
		{id.String(), id.String()},
		{id.String()},
		{id.String()},
	}
	for i, query := range cascade {
		if err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args[i]}); err != nil {
			return fmt.Errorf("ledger: cascading removal of %s: %w", id, err)
		}
	}

	s.logger.Info("object removed", "object", id.String())
	return nil
}

// Parents returns the direct parents of the object.
func (s *Store) Parents(ctx context.Context, id objectid.ID) ([]objectid.ID, error) {
	return s.neighbors(ctx, id, `SELECT parent FROM edges WHERE child = ? ORDER BY parent`)
}

// Children returns the direct children of the object.
func (s *Store) Children(ctx context.Context, id objectid.ID) ([]objectid.ID, error) {
	return s.neighbors(ctx, id, `SELECT child FROM edges WHERE parent = ? ORDER BY child`)
}

func (s *Store) neighbors(ctx context.Context, id objectid.ID, query string) ([]objectid.ID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	exists, err := s.objectExists(conn, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("ledger: object %s: %w", id, ErrNotFound)
	}

	var result []objectid.ID
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			neighbor, parseErr := objectid.Parse(stmt.ColumnText(0))
			if parseErr != nil {
				return parseErr
			}
			result = append(result, neighbor)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: neighbors of %s: %w", id, err)
	}
	return result, nil
}

// Ancestors walks the transitive ancestors of the object in
// breadth-first order, calling visit for each one (the object itself
// is not visited). The walk is lazy — each generation is fetched as
// the previous one is consumed — and restartable by calling Ancestors
// again. A seen set guarantees no node is visited twice even if the
// graph grows concurrently mid-walk. Returning an error from visit
// stops the walk and returns that error. Fails with ErrCapacity if
// the walk exceeds the traversal limit.
func (s *Store) Ancestors(ctx context.Context, id objectid.ID, visit func(objectid.ID) error) error {
	return s.walk(ctx, id, visit, `SELECT parent FROM edges WHERE child = ?`)
}

// Descendants walks the transitive descendants of the object in
// breadth-first order. Same contract as Ancestors.
func (s *Store) Descendants(ctx context.Context, id objectid.ID, visit func(objectid.ID) error) error {
	return s.walk(ctx, id, visit, `SELECT child FROM edges WHERE parent = ?`)
}

func (s *Store) walk(ctx context.Context, id objectid.ID, visit func(objectid.ID) error, step string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	exists, err := s.objectExists(conn, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ledger: object %s: %w", id, ErrNotFound)
	}

	seen := map[objectid.ID]bool{id: true}
	frontier := []objectid.ID{id}
	visited := 0

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ledger: walk from %s: %w", id, err)
		}

		var next []objectid.ID
		for _, node := range frontier {
			err := sqlitex.Execute(conn, step, &sqlitex.ExecOptions{
				Args: []any{node.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					neighbor, parseErr := objectid.Parse(stmt.ColumnText(0))
					if parseErr != nil {
						return parseErr
					}
					if !seen[neighbor] {
						seen[neighbor] = true
						next = append(next, neighbor)
					}
					return nil
				},
			})
			if err != nil {
				return fmt.Errorf("ledger: walk from %s: %w", id, err)
			}
		}

		for _, node := range next {
			visited++
			if visited > s.traversalLimit {
				return fmt.Errorf("ledger: walk from %s visited %d nodes: %w", id, visited, ErrCapacity)
			}
			if err := visit(node); err != nil {
				return err
			}
		}
		frontier = next
	}
	return nil
}
