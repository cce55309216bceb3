// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/capability"
	"github.com/bureau-foundation/depot/lib/clock"
	"github.com/bureau-foundation/depot/lib/sqlitepool"
)

// ErrNotFound means the referenced user or group does not exist.
var ErrNotFound = errors.New("principal not found")

// ErrExists means a user or group with the name already exists. Users
// and groups share one namespace.
var ErrExists = errors.New("principal already exists")

// ErrPrivateGroup means the operation would modify a private group's
// membership, which is fixed at user creation.
var ErrPrivateGroup = errors.New("private group membership is immutable")

// User is a repository user.
type User struct {
	// Name is the unique user name. The user's private group carries
	// the same name.
	Name string

	// CreatedAt is when the user was created.
	CreatedAt time.Time
}

// Group is a unit of sharing and permission.
type Group struct {
	// Name is the unique group name.
	Name string

	// Capabilities is the group's capability set.
	Capabilities capability.Set

	// Private marks the auto-created single-member group of a user.
	// Private groups reject membership changes. Nothing else
	// distinguishes them from explicitly created groups.
	Private bool

	// CreatedAt is when the group was created.
	CreatedAt time.Time
}

// Snapshot is one consistent view of a user's groups and capabilities,
// read in a single transaction. The access decision function resolves
// a snapshot once per decision so that a concurrent capability toggle
// cannot produce a torn read within one decision.
type Snapshot struct {
	// User is the user's name.
	User string

	// Groups is every group the user belongs to, including the
	// private group and public.
	Groups []Group

	// Capabilities is the union of the capability sets of Groups.
	Capabilities capability.Set
}

// GroupNames returns the names of the snapshot's groups.
func (s *Snapshot) GroupNames() []string {
	names := make([]string, len(s.Groups))
	for i, group := range s.Groups {
		names[i] = group.Name
	}
	return names
}

// Member reports whether the snapshot contains the named group.
func (s *Snapshot) Member(group string) bool {
	for i := range s.Groups {
		if s.Groups[i].Name == group {
			return true
		}
	}
	return false
}

// StoreConfig holds the parameters for opening a principal store.
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

// Store is the SQLite-backed principal store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS groups (
	name         TEXT PRIMARY KEY,
	capabilities INTEGER NOT NULL DEFAULT 0,
	private      INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS memberships (
	user_name  TEXT NOT NULL,
	group_name TEXT NOT NULL,
	PRIMARY KEY (user_name, group_name)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_memberships_group ON memberships(group_name);
`

// OpenStore opens the principal store, creating the schema and the
// reserved groups (public, everything) if they do not exist. The
// caller must call Close when done.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("principal store: Clock is required")
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
		return nil, fmt.Errorf("principal store: %w", err)
	}

	store := &Store{pool: pool, clock: cfg.Clock, logger: logger}
	if err := store.ensureReserved(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// ensureReserved creates the public and everything groups if absent.
// Idempotent across restarts.
func (s *Store) ensureReserved(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.clock.Now().UnixNano()
	reserved := []struct {
		name         string
		capabilities capability.Set
	}{
		{Public, 0},
		{Everything, capability.Set(0).With(capability.AccessAllObjects)},
	}
	for _, group := range reserved {
		err := sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO groups (name, capabilities, private, created_at)
			 VALUES (?, ?, 0, ?)`,
			&sqlitex.ExecOptions{Args: []any{group.name, int64(group.capabilities), now}})
		if err != nil {
			return fmt.Errorf("principal store: creating reserved group %s: %w", group.name, err)
		}
	}
	return nil
}

// CreateUser creates a user, its private group, and memberships in the
// private group and public. Fails with ErrExists if a user or group
// with the name already exists.
func (s *Store) CreateUser(ctx context.Context, name string) (User, error) {
	if err := ValidateName(name); err != nil {
		return User{}, fmt.Errorf("principal store: user name: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return User{}, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return User{}, fmt.Errorf("principal store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	taken, err := s.nameTaken(conn, name)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, fmt.Errorf("principal store: creating user %s: %w", name, ErrExists)
	}

	now := s.clock.Now()
	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO users (name, created_at) VALUES (?, ?)`,
			[]any{name, now.UnixNano()}},
		{`INSERT INTO groups (name, capabilities, private, created_at) VALUES (?, 0, 1, ?)`,
			[]any{name, now.UnixNano()}},
		{`INSERT INTO memberships (user_name, group_name) VALUES (?, ?)`,
			[]any{name, name}},
		{`INSERT INTO memberships (user_name, group_name) VALUES (?, ?)`,
			[]any{name, Public}},
	}
	for _, statement := range statements {
		if err = sqlitex.Execute(conn, statement.query, &sqlitex.ExecOptions{Args: statement.args}); err != nil {
			return User{}, fmt.Errorf("principal store: creating user %s: %w", name, err)
		}
	}

	s.logger.Info("user created", "user", name)
	return User{Name: name, CreatedAt: now}, nil
}

// CreateGroup creates a shared group with the given capability set.
// Fails with ErrExists if a user or group with the name already
// exists (reserved groups included).
func (s *Store) CreateGroup(ctx context.Context, name string, capabilities capability.Set) (Group, error) {
	if err := ValidateName(name); err != nil {
		return Group{}, fmt.Errorf("principal store: group name: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Group{}, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Group{}, fmt.Errorf("principal store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	taken, err := s.nameTaken(conn, name)
	if err != nil {
		return Group{}, err
	}
	if taken {
		return Group{}, fmt.Errorf("principal store: creating group %s: %w", name, ErrExists)
	}

	now := s.clock.Now()
	err = sqlitex.Execute(conn,
		`INSERT INTO groups (name, capabilities, private, created_at) VALUES (?, ?, 0, ?)`,
		&sqlitex.ExecOptions{Args: []any{name, int64(capabilities), now.UnixNano()}})
	if err != nil {
		return Group{}, fmt.Errorf("principal store: creating group %s: %w", name, err)
	}

	s.logger.Info("group created", "group", name, "capabilities", capabilities.String())
	return Group{Name: name, Capabilities: capabilities, CreatedAt: now}, nil
}

// nameTaken reports whether a user or group already claims the name.
func (s *Store) nameTaken(conn *sqlite.Conn, name string) (bool, error) {
	var taken bool
	err := sqlitex.Execute(conn,
		`SELECT 1 FROM groups WHERE name = ? UNION SELECT 1 FROM users WHERE name = ? LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{name, name},
			ResultFunc: func(*sqlite.Stmt) error {
				taken = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("principal store: checking name %s: %w", name, err)
	}
	return taken, nil
}

// AddMember adds a user to a group. Idempotent. Fails with
// ErrPrivateGroup for private groups and ErrNotFound if the user or
// group is absent.
func (s *Store) AddMember(ctx context.Context, group, user string) error {
	return s.changeMembership(ctx, group, user, true)
}

// RemoveMember removes a user from a group. Fails with
// ErrPrivateGroup for private groups and for public (every user is a
// member of public by construction). Removing a non-member is a no-op.
func (s *Store) RemoveMember(ctx context.Context, group, user string) error {
	if group == Public {
		return fmt.Errorf("principal store: removing %s from %s: %w", user, group, ErrPrivateGroup)
	}
	return s.changeMembership(ctx, group, user, false)
}

func (s *Store) changeMembership(ctx context.Context, group, user string, add bool) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("principal store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	groupRow, err := s.groupOn(conn, group)
	if err != nil {
		return fmt.Errorf("principal store: membership change in %s: %w", group, err)
	}
	if groupRow.Private {
		return fmt.Errorf("principal store: membership change in %s: %w", group, ErrPrivateGroup)
	}

	var userExists bool
	err = sqlitex.Execute(conn, `SELECT 1 FROM users WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{user},
		ResultFunc: func(*sqlite.Stmt) error {
			userExists = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("principal store: checking user %s: %w", user, err)
	}
	if !userExists {
		return fmt.Errorf("principal store: user %s: %w", user, ErrNotFound)
	}

	if add {
		err = sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO memberships (user_name, group_name) VALUES (?, ?)`,
			&sqlitex.ExecOptions{Args: []any{user, group}})
	} else {
		err = sqlitex.Execute(conn,
			`DELETE FROM memberships WHERE user_name = ? AND group_name = ?`,
			&sqlitex.ExecOptions{Args: []any{user, group}})
	}
	if err != nil {
		return fmt.Errorf("principal store: membership change in %s: %w", group, err)
	}

	s.logger.Info("membership changed", "group", group, "user", user, "added", add)
	return nil
}

// SetCapabilities replaces a group's capability set. The change is
// effective for every subsequent decision; in-flight decisions keep
// the snapshot they already resolved.
func (s *Store) SetCapabilities(ctx context.Context, group string, capabilities capability.Set) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE groups SET capabilities = ? WHERE name = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(capabilities), group}})
	if err != nil {
		return fmt.Errorf("principal store: setting capabilities of %s: %w", group, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("principal store: group %s: %w", group, ErrNotFound)
	}

	s.logger.Info("capabilities changed", "group", group, "capabilities", capabilities.String())
	return nil
}

// User returns the named user.
func (s *Store) User(ctx context.Context, name string) (User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return User{}, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	var user User
	var found bool
	err = sqlitex.Execute(conn,
		`SELECT name, created_at FROM users WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				user.Name = stmt.ColumnText(0)
				user.CreatedAt = time.Unix(0, stmt.ColumnInt64(1))
				return nil
			},
		})
	if err != nil {
		return User{}, fmt.Errorf("principal store: reading user %s: %w", name, err)
	}
	if !found {
		return User{}, fmt.Errorf("principal store: user %s: %w", name, ErrNotFound)
	}
	return user, nil
}

// Group returns the named group.
func (s *Store) Group(ctx context.Context, name string) (Group, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Group{}, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	group, err := s.groupOn(conn, name)
	if err != nil {
		return Group{}, fmt.Errorf("principal store: reading group %s: %w", name, err)
	}
	return group, nil
}

func (s *Store) groupOn(conn *sqlite.Conn, name string) (Group, error) {
	var group Group
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT name, capabilities, private, created_at FROM groups WHERE name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				group.Name = stmt.ColumnText(0)
				group.Capabilities = capability.Set(stmt.ColumnInt64(1))
				group.Private = stmt.ColumnInt64(2) != 0
				group.CreatedAt = time.Unix(0, stmt.ColumnInt64(3))
				return nil
			},
		})
	if err != nil {
		return Group{}, err
	}
	if !found {
		return Group{}, ErrNotFound
	}
	return group, nil
}

// ResolveGroups returns every group the user belongs to, including
// the private group and public. Fails with ErrNotFound for unknown
// users.
func (s *Store) ResolveGroups(ctx context.Context, user string) ([]Group, error) {
	snapshot, err := s.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	return snapshot.Groups, nil
}

// CapabilitiesOf returns the union of the capability sets of all
// groups the user belongs to.
func (s *Store) CapabilitiesOf(ctx context.Context, user string) (capability.Set, error) {
	snapshot, err := s.Resolve(ctx, user)
	if err != nil {
		return 0, err
	}
	return snapshot.Capabilities, nil
}

// Resolve reads the user's groups and capability union in one
// transaction. This is the snapshot the access decision function uses
// for an entire decision.
func (s *Store) Resolve(ctx context.Context, user string) (Snapshot, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	// A deferred (read) transaction pins one SQLite snapshot for both
	// the existence check and the membership join.
	endTransaction := sqlitex.Transaction(conn)
	defer endTransaction(&err)

	var userExists bool
	err = sqlitex.Execute(conn, `SELECT 1 FROM users WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{user},
		ResultFunc: func(*sqlite.Stmt) error {
			userExists = true
			return nil
		},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("principal store: resolving %s: %w", user, err)
	}
	if !userExists {
		return Snapshot{}, fmt.Errorf("principal store: user %s: %w", user, ErrNotFound)
	}

	snapshot := Snapshot{User: user}
	err = sqlitex.Execute(conn,
		`SELECT g.name, g.capabilities, g.private, g.created_at
		 FROM memberships m JOIN groups g ON g.name = m.group_name
		 WHERE m.user_name = ?
		 ORDER BY g.name`,
		&sqlitex.ExecOptions{
			Args: []any{user},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				group := Group{
					Name:         stmt.ColumnText(0),
					Capabilities: capability.Set(stmt.ColumnInt64(1)),
					Private:      stmt.ColumnInt64(2) != 0,
					CreatedAt:    time.Unix(0, stmt.ColumnInt64(3)),
				}
				snapshot.Groups = append(snapshot.Groups, group)
				snapshot.Capabilities = snapshot.Capabilities.Union(group.Capabilities)
				return nil
			},
		})
	if err != nil {
		return Snapshot{}, fmt.Errorf("principal store: resolving %s: %w", user, err)
	}
	return snapshot, nil
}

// GroupsWithCapability returns the names of all groups holding the
// capability. The ingestion path uses this to issue auto-everything
// grants at object creation time.
func (s *Store) GroupsWithCapability(ctx context.Context, c capability.Capability) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	var names []string
	err = sqlitex.Execute(conn,
		`SELECT name FROM groups WHERE (capabilities & ?) != 0 ORDER BY name`,
		&sqlitex.ExecOptions{
			Args: []any{int64(c)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				names = append(names, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("principal store: groups with capability %s: %w", c, err)
	}
	return names, nil
}

// Members returns the user names in a group, sorted. Fails with
// ErrNotFound for unknown groups.
func (s *Store) Members(ctx context.Context, group string) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("principal store: %w", err)
	}
	defer s.pool.Put(conn)

	if _, err := s.groupOn(conn, group); err != nil {
		return nil, fmt.Errorf("principal store: members of %s: %w", group, err)
	}

	var members []string
	err = sqlitex.Execute(conn,
		`SELECT user_name FROM memberships WHERE group_name = ? ORDER BY user_name`,
		&sqlitex.ExecOptions{
			Args: []any{group},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				members = append(members, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("principal store: members of %s: %w", group, err)
	}
	return members, nil
}
