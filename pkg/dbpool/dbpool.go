// Copyright 2026 The Chatbroker Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dbpool manages shared *sql.DB connections for the knowledge
// store and the message log, across SQLite, Postgres, and MySQL.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Rebind rewrites a query written with "?" placeholders into the
// placeholder style the given driver expects. SQLite and MySQL both
// accept "?" natively; Postgres requires positional "$1", "$2", ...
// This lets every store write one query string instead of one per
// dialect.
func Rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DSN describes the connection target for a SQL backend.
type DSN struct {
	Driver   string // "sqlite", "postgres", or "mysql"
	Database string // file path for sqlite, database name otherwise
	Host     string
	Port     int
	Username string
	Password string
	SSLMode  string
}

// driverName maps the logical driver name to the registered database/sql
// driver name.
func (d DSN) driverName() string {
	if d.Driver == "sqlite" {
		return "sqlite3"
	}
	return d.Driver
}

func (d DSN) dsn() string {
	switch d.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", d.Host, d.Port, d.Database, orDefault(d.SSLMode, "disable"))
		if d.Username != "" {
			dsn += fmt.Sprintf(" user=%s", d.Username)
		}
		if d.Password != "" {
			dsn += fmt.Sprintf(" password=%s", d.Password)
		}
		return dsn
	case "mysql":
		auth := d.Username
		if d.Password != "" {
			auth += ":" + d.Password
		}
		return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", auth, d.Host, d.Port, d.Database)
	default: // sqlite / sqlite3
		return d.Database
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (d DSN) key() string {
	return d.driverName() + "://" + d.dsn()
}

// Pool caches one *sql.DB per distinct DSN so the knowledge store and
// message log can share a single connection when they point at the
// same database, which matters most for SQLite where a second
// connection would contend for the same file lock.
type Pool struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{pools: make(map[string]*sql.DB)}
}

// Get returns the shared *sql.DB for dsn, opening and pinging it on
// first use.
func (p *Pool) Get(dsn DSN) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := dsn.key()
	if db, ok := p.pools[key]; ok {
		return db, nil
	}

	db, err := p.open(dsn)
	if err != nil {
		return nil, err
	}
	p.pools[key] = db
	return db, nil
}

func (p *Pool) open(dsn DSN) (*sql.DB, error) {
	driver := dsn.driverName()
	db, err := sql.Open(driver, dsn.dsn())
	if err != nil {
		return nil, fmt.Errorf("dbpool: open %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// SQLite allows exactly one writer. A single shared connection
		// serializes all access and avoids "database is locked" errors
		// under concurrent writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbpool: ping %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("dbpool: failed to enable WAL mode", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("dbpool: failed to set busy_timeout", "error", err)
		}
	}

	return db, nil
}

// Close closes every pooled connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for key, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dbpool: close %s: %w", key, err)
		}
	}
	p.pools = make(map[string]*sql.DB)
	return firstErr
}
