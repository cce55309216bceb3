// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/depot/lib/sqlitepool"
)

// objectSchema is a cut-down version of the ledger's object table,
// enough to exercise the pool against the kind of statements the
// stores actually run.
const objectSchema = `
	CREATE TABLE IF NOT EXISTS objects (
		id       TEXT PRIMARY KEY,
		kind     TEXT NOT NULL,
		uploader TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS shares (
		object_id  TEXT NOT NULL REFERENCES objects(id),
		group_name TEXT NOT NULL,
		PRIMARY KEY (object_id, group_name)
	);
`

func TestOpenAndClose(t *testing.T) {
	pool := openTestPool(t, nil)

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	// Verify WAL mode is active.
	var journalMode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}

	// Verify synchronous is NORMAL (1).
	var synchronous int
	err = sqlitex.Execute(conn, "PRAGMA synchronous", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			synchronous = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	if synchronous != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", synchronous)
	}
}

func TestOnConnectAppliesSchema(t *testing.T) {
	var calls int
	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		calls++
		return sqlitex.ExecuteScript(conn, objectSchema, nil)
	})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	if calls == 0 {
		t.Error("OnConnect was not called")
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO objects (id, kind, uploader) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{"obj-1", "file", "alice"}})
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, objectSchema, nil)
	})

	// Seed a handful of shares through a single connection.
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take for setup: %v", err)
	}
	err = sqlitex.ExecuteScript(conn, `
		INSERT INTO objects (id, kind, uploader) VALUES ('obj-1', 'file', 'alice');
		INSERT INTO shares (object_id, group_name) VALUES
			('obj-1', 'team'), ('obj-1', 'readers'), ('obj-1', 'auditors');
	`, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	pool.Put(conn)

	// Read from multiple goroutines simultaneously.
	const goroutineCount = 8
	var waitGroup sync.WaitGroup
	errors := make(chan error, goroutineCount)

	for range goroutineCount {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			conn, err := pool.Take(context.Background())
			if err != nil {
				errors <- err
				return
			}
			defer pool.Put(conn)

			var groups int
			err = sqlitex.Execute(conn,
				"SELECT COUNT(*) FROM shares WHERE object_id = 'obj-1'",
				&sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						groups = stmt.ColumnInt(0)
						return nil
					},
				})
			if err != nil {
				errors <- err
				return
			}
			if groups != 3 {
				errors <- fmt.Errorf("share count = %d, want 3", groups)
			}
		}()
	}

	waitGroup.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	_, err := sqlitepool.Open(sqlitepool.Config{})
	if err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestContextCancellation(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	// Try to take a second connection with a cancelled context.
	// The pool has size 1, so this should block then fail.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Take(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}

	pool.Put(conn)
}

func TestTakeBlocksUntilPut(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "block.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	held, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		conn, err := pool.Take(context.Background())
		if err == nil {
			pool.Put(conn)
		}
		close(acquired)
	}()

	// The second Take must not complete while the only connection is
	// held. Anything taking a connection inside a section that already
	// holds one would hang here, which is exactly what this guards.
	select {
	case <-acquired:
		t.Fatal("Take completed while the pool was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Put(held)

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("Take did not complete after Put")
	}
}

// openTestPool creates a pool backed by a temporary database file.
// The pool is closed automatically when the test completes.
func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "depot.db"),
		PoolSize:  4,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
