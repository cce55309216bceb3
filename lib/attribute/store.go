// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attribute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/objectid"
	"github.com/bureau-foundation/depot/lib/sqlitepool"
)

// ErrNotFound means the referenced attribute key does not exist.
var ErrNotFound = errors.New("attribute key not found")

// ErrImmutableKey means the operation attempted to rename or delete a
// declared attribute key. Key names are immutable for the lifetime of
// the instance.
var ErrImmutableKey = errors.New("attribute key names are immutable")

// MaxKeyLength is the maximum length in bytes of an attribute key
// name.
const MaxKeyLength = 32

// KeyDefinition describes a declared attribute key.
type KeyDefinition struct {
	// Name is the immutable key name: lowercase a-z, 0-9, _, -.
	Name string

	// Label is the human-readable display name.
	Label string

	// Description explains what values under this key mean.
	Description string

	// URLTemplate renders a value into a link; $value is substituted.
	// Key immutability keeps historical templates valid.
	URLTemplate string

	// Hidden excludes the key's values from wildcard search and
	// listings for readers without reading_all_attributes.
	Hidden bool

	// CreatedAt is when the key was first declared.
	CreatedAt time.Time
}

// ACL is one per-group permission row on a key.
type ACL struct {
	Key     string
	Group   string
	CanRead bool
	CanSet  bool
}

// Attribute is one (object, key, value) fact.
type Attribute struct {
	Object    objectid.ID
	Key       string
	Value     string
	Adder     string
	CreatedAt time.Time
}

// StoreConfig holds the parameters for opening an attribute store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Clock provides creation timestamps.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the SQLite-backed attribute store. Safe for concurrent
// use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS attribute_keys (
	name         TEXT PRIMARY KEY,
	label        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	url_template TEXT NOT NULL DEFAULT '',
	hidden       INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS attribute_acls (
	key_name   TEXT NOT NULL,
	group_name TEXT NOT NULL,
	can_read   INTEGER NOT NULL DEFAULT 0,
	can_set    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (key_name, group_name)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS attributes (
	object     TEXT NOT NULL,
	key_name   TEXT NOT NULL,
	value      TEXT NOT NULL,
	adder      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (object, key_name, value)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_attributes_key_value ON attributes(key_name, value);
`

// OpenStore opens the attribute store, creating the schema if needed.
// The caller must call Close when done.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("attribute store: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
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
		return nil, fmt.Errorf("attribute store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// NormalizeKey lowercases and trims a key name, matching the
// normalization applied on declaration so lookups with mixed-case
// input find the declared key.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateKey checks a (normalized) attribute key name.
func ValidateKey(name string) error {
	if name == "" {
		return fmt.Errorf("key name is empty")
	}
	if len(name) > MaxKeyLength {
		return fmt.Errorf("key name is %d characters, maximum is %d", len(name), MaxKeyLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' {
			return fmt.Errorf("invalid character %q at position %d (allowed: a-z, 0-9, _, -)", c, i)
		}
	}
	return nil
}

// DeclareKey creates the key or merges an updated definition into an
// existing one. The name is fixed at first declaration; label,
// description, URL template, and the hidden flag are replaced on
// re-declaration. Returns the stored definition.
func (s *Store) DeclareKey(ctx context.Context, def KeyDefinition) (KeyDefinition, error) {
	def.Name = NormalizeKey(def.Name)
	if err := ValidateKey(def.Name); err != nil {
		return KeyDefinition{}, fmt.Errorf("attribute store: declaring key: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return KeyDefinition{}, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	hidden := 0
	if def.Hidden {
		hidden = 1
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO attribute_keys (name, label, description, url_template, hidden, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			label        = excluded.label,
			description  = excluded.description,
			url_template = excluded.url_template,
			hidden       = excluded.hidden`,
		&sqlitex.ExecOptions{Args: []any{
			def.Name, def.Label, def.Description, def.URLTemplate, hidden, s.clock.Now().UnixNano(),
		}})
	if err != nil {
		return KeyDefinition{}, fmt.Errorf("attribute store: declaring key %s: %w", def.Name, err)
	}

	s.logger.Info("attribute key declared", "key", def.Name, "hidden", def.Hidden)
	return s.keyOn(conn, def.Name)
}

// DeleteKey always fails with ErrImmutableKey. Declared keys exist
// for the lifetime of the instance.
func (s *Store) DeleteKey(ctx context.Context, name string) error {
	return fmt.Errorf("attribute store: deleting key %s: %w", NormalizeKey(name), ErrImmutableKey)
}

// RenameKey always fails with ErrImmutableKey.
func (s *Store) RenameKey(ctx context.Context, oldName, newName string) error {
	return fmt.Errorf("attribute store: renaming key %s to %s: %w",
		NormalizeKey(oldName), NormalizeKey(newName), ErrImmutableKey)
}

// Key returns the named key's definition.
func (s *Store) Key(ctx context.Context, name string) (KeyDefinition, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return KeyDefinition{}, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	return s.keyOn(conn, NormalizeKey(name))
}

func (s *Store) keyOn(conn *sqlite.Conn, name string) (KeyDefinition, error) {
	var def KeyDefinition
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT name, label, description, url_template, hidden, created_at
		 FROM attribute_keys WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				def = KeyDefinition{
					Name:        stmt.ColumnText(0),
					Label:       stmt.ColumnText(1),
					Description: stmt.ColumnText(2),
					URLTemplate: stmt.ColumnText(3),
					Hidden:      stmt.ColumnInt64(4) != 0,
					CreatedAt:   time.Unix(0, stmt.ColumnInt64(5)),
				}
				return nil
			},
		})
	if err != nil {
		return KeyDefinition{}, fmt.Errorf("attribute store: reading key %s: %w", name, err)
	}
	if !found {
		return KeyDefinition{}, fmt.Errorf("attribute store: key %s: %w", name, ErrNotFound)
	}
	return def, nil
}

// Keys returns all declared keys, sorted by name.
func (s *Store) Keys(ctx context.Context) ([]KeyDefinition, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	var defs []KeyDefinition
	err = sqlitex.Execute(conn,
		`SELECT name, label, description, url_template, hidden, created_at
		 FROM attribute_keys ORDER BY name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				defs = append(defs, KeyDefinition{
					Name:        stmt.ColumnText(0),
					Label:       stmt.ColumnText(1),
					Description: stmt.ColumnText(2),
					URLTemplate: stmt.ColumnText(3),
					Hidden:      stmt.ColumnInt64(4) != 0,
					CreatedAt:   time.Unix(0, stmt.ColumnInt64(5)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("attribute store: listing keys: %w", err)
	}
	return defs, nil
}

// SetACL creates or replaces the (key, group) permission row. Fails
// with ErrNotFound if the key is not declared.
func (s *Store) SetACL(ctx context.Context, key, group string, canRead, canSet bool) error {
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

	read, set := 0, 0
	if canRead {
		read = 1
	}
	if canSet {
		set = 1
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO attribute_acls (key_name, group_name, can_read, can_set)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key_name, group_name) DO UPDATE SET
			can_read = excluded.can_read,
			can_set  = excluded.can_set`,
		&sqlitex.ExecOptions{Args: []any{key, group, read, set}})
	if err != nil {
		return fmt.Errorf("attribute store: setting ACL on %s for %s: %w", key, group, err)
	}

	s.logger.Info("attribute ACL set", "key", key, "group", group, "can_read", canRead, "can_set", canSet)
	return nil
}

// RemoveACL deletes the (key, group) permission row. Removing an
// absent row is a no-op; the key itself is untouched.
func (s *Store) RemoveACL(ctx context.Context, key, group string) error {
	key = NormalizeKey(key)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM attribute_acls WHERE key_name = ? AND group_name = ?`,
		&sqlitex.ExecOptions{Args: []any{key, group}})
	if err != nil {
		return fmt.Errorf("attribute store: removing ACL on %s for %s: %w", key, group, err)
	}
	return nil
}

// ACLs returns the permission rows on a key. Fails with ErrNotFound
// if the key is not declared.
func (s *Store) ACLs(ctx context.Context, key string) ([]ACL, error) {
	key = NormalizeKey(key)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	if _, err := s.keyOn(conn, key); err != nil {
		return nil, err
	}

	var acls []ACL
	err = sqlitex.Execute(conn,
		`SELECT key_name, group_name, can_read, can_set FROM attribute_acls
		 WHERE key_name = ? ORDER BY group_name`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				acls = append(acls, ACL{
					Key:     stmt.ColumnText(0),
					Group:   stmt.ColumnText(1),
					CanRead: stmt.ColumnInt64(2) != 0,
					CanSet:  stmt.ColumnInt64(3) != 0,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("attribute store: listing ACLs on %s: %w", key, err)
	}
	return acls, nil
}

// CanRead reports whether any of the groups holds a can_read row on
// the key. Fails with ErrNotFound if the key is not declared.
func (s *Store) CanRead(ctx context.Context, key string, groups []string) (bool, error) {
	return s.permitted(ctx, key, groups, "can_read")
}

// CanSet reports whether any of the groups holds a can_set row on the
// key. Fails with ErrNotFound if the key is not declared.
func (s *Store) CanSet(ctx context.Context, key string, groups []string) (bool, error) {
	return s.permitted(ctx, key, groups, "can_set")
}

func (s *Store) permitted(ctx context.Context, key string, groups []string, column string) (bool, error) {
	key = NormalizeKey(key)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("attribute store: %w", err)
	}
	defer s.pool.Put(conn)

	if _, err := s.keyOn(conn, key); err != nil {
		return false, err
	}
	if len(groups) == 0 {
		return false, nil
	}

	args := make([]any, 0, len(groups)+1)
	args = append(args, key)
	for _, group := range groups {
		args = append(args, group)
	}

	var allowed bool
	// column is one of the two constants above, never user input.
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM attribute_acls WHERE key_name = ? AND `+column+` = 1
		 AND group_name IN (`+placeholders(len(groups))+`) LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(*sqlite.Stmt) error {
				allowed = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("attribute store: checking %s on %s: %w", column, key, err)
	}
	return allowed, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
