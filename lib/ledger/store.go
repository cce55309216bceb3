// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/objectid"
	"github.com/bureau-foundation/depot/lib/sqlitepool"
)

// ErrNotFound means the referenced object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrCapacity means a graph traversal exceeded the configured limit.
// Callers must treat this as a system error and fail closed, never as
// a permission verdict.
var ErrCapacity = errors.New("traversal limit exceeded")

// CycleError means an edge insertion would violate the DAG invariant.
type CycleError struct {
	// Parent is the proposed parent object.
	Parent objectid.ID

	// Child is the proposed child object.
	Child objectid.ID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("edge %s -> %s would create a cycle", e.Parent, e.Child)
}

// Reason is the provenance of a ShareRecord.
type Reason string

const (
	// ReasonUpload is an explicit share chosen at creation time.
	ReasonUpload Reason = "upload"

	// ReasonAddedLater is an explicit grant after creation.
	ReasonAddedLater Reason = "added-later"

	// ReasonAutoEverything is the grant issued at object creation to
	// every group then holding access_all_objects.
	ReasonAutoEverything Reason = "auto-everything"

	// ReasonAutoQuery is the grant triggered when a member of a
	// share_queried_objects group looks the object up directly.
	ReasonAutoQuery Reason = "auto-query"
)

// ParseReason validates a share reason from the wire.
func ParseReason(s string) (Reason, error) {
	switch Reason(s) {
	case ReasonUpload, ReasonAddedLater, ReasonAutoEverything, ReasonAutoQuery:
		return Reason(s), nil
	default:
		return "", fmt.Errorf("unknown share reason %q", s)
	}
}

// ShareRecord is the fact that a group was granted direct visibility
// of an object, with provenance. It says nothing about the object's
// ancestors or descendants by itself.
type ShareRecord struct {
	Object    objectid.ID
	Group     string
	Reason    Reason
	CreatedAt time.Time
}

// Share pairs a group with a share reason, for the initial grants of
// CreateObject.
type Share struct {
	Group  string
	Reason Reason
}

// Object is a node in the derivation graph.
type Object struct {
	ID        objectid.ID
	Kind      objectid.Kind
	Uploader  string
	CreatedAt time.Time
}

// DefaultTraversalLimit bounds graph walks and propagation closures
// when StoreConfig.TraversalLimit is zero.
const DefaultTraversalLimit = 100000

// StoreConfig holds the parameters for opening a ledger store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// TraversalLimit caps the number of nodes any single traversal or
	// propagation may visit. Defaults to DefaultTraversalLimit.
	TraversalLimit int

	// Clock provides creation timestamps.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the SQLite-backed derivation graph and share ledger. Safe
// for concurrent use.
type Store struct {
	pool           *sqlitepool.Pool
	clock          clock.Clock
	logger         *slog.Logger
	traversalLimit int
}

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	uploader   TEXT NOT NULL,
	created_at INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS edges (
	parent TEXT NOT NULL,
	child  TEXT NOT NULL,
	PRIMARY KEY (parent, child)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_edges_child ON edges(child);

CREATE TABLE IF NOT EXISTS shares (
	object     TEXT NOT NULL,
	group_name TEXT NOT NULL,
	reason     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (object, group_name)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS visible (
	object     TEXT NOT NULL,
	group_name TEXT NOT NULL,
	PRIMARY KEY (object, group_name)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_visible_group ON visible(group_name);
`

// OpenStore opens the ledger store, creating the schema if needed.
// The caller must call Close when done.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("ledger: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	traversalLimit := cfg.TraversalLimit
	if traversalLimit <= 0 {
		traversalLimit = DefaultTraversalLimit
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	return &Store{
		pool:           pool,
		clock:          cfg.Clock,
		logger:         logger,
		traversalLimit: traversalLimit,
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Object returns the object's metadata. Fails with ErrNotFound if the
// object is absent — callers on the authorization path must collapse
// that into the same deny as not-visible before reporting to users.
func (s *Store) Object(ctx context.Context, id objectid.ID) (Object, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Object{}, fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	return s.objectOn(conn, id)
}

func (s *Store) objectOn(conn *sqlite.Conn, id objectid.ID) (Object, error) {
	var object Object
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT id, kind, uploader, created_at FROM objects WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				parsed, err := objectid.Parse(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				kind, err := objectid.ParseKind(stmt.ColumnText(1))
				if err != nil {
					return err
				}
				found = true
				object = Object{
					ID:        parsed,
					Kind:      kind,
					Uploader:  stmt.ColumnText(2),
					CreatedAt: time.Unix(0, stmt.ColumnInt64(3)),
				}
				return nil
			},
		})
	if err != nil {
		return Object{}, fmt.Errorf("ledger: reading object %s: %w", id, err)
	}
	if !found {
		return Object{}, fmt.Errorf("ledger: object %s: %w", id, ErrNotFound)
	}
	return object, nil
}

func (s *Store) objectExists(conn *sqlite.Conn, id objectid.ID) (bool, error) {
	var exists bool
	err := sqlitex.Execute(conn, `SELECT 1 FROM objects WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("ledger: checking object %s: %w", id, err)
	}
	return exists, nil
}
