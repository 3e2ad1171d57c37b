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

// Package chatlog implements the append-only MessageLog: every message
// observed by the broker, tagged with role, language, and conversation id.
package chatlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/chatbroker/chatbroker/pkg/dbpool"
)

// Role identifies who produced a logged message.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleBot    Role = "bot"
)

// Store is the persistent, append-only conversation log.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex
}

// New opens (and idempotently creates) the messages table against db.
// driver is the dbpool driver name ("sqlite", "postgres", or "mysql").
func New(db *sql.DB, driver string) (*Store, error) {
	s := &Store{db: db, driver: driver}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		idColumn = "id SERIAL PRIMARY KEY"
	} else if s.driver == "mysql" {
		idColumn = "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS messages (
			%s,
			conv_id TEXT NOT NULL,
			role TEXT NOT NULL,
			lang TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`, idColumn))
	if err != nil {
		return fmt.Errorf("chatlog: init schema: %w", err)
	}
	return nil
}

// Log appends one row to the conversation log. Failures are the
// caller's responsibility to downgrade: logging is best-effort and
// never user-visible.
func (s *Store) Log(ctx context.Context, role Role, lang, content, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := dbpool.Rebind(s.driver, `INSERT INTO messages(conv_id, role, lang, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		cid, string(role), lang, content, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("chatlog: insert: %w", err)
	}
	return nil
}
