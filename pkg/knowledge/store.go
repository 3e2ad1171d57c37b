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

// Package knowledge implements the persistent, full-text indexed Q/A
// repository: the learning store that accumulates question/answer
// pairs from agent behavior and serves the bot's best-match lookups.
package knowledge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chatbroker/chatbroker/pkg/dbpool"
)

// Entry is one persisted question/answer pair.
type Entry struct {
	ID                     int64
	SourceLanguageQuestion string
	ChineseQuestion        string
	ChineseAnswer          string
	Fingerprint            string
	Hits                   int
	Upvotes                int
	Source                 string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Match is a single best-match result from RetrieveBest.
type Match struct {
	ID            int64
	ChineseAnswer string
	Score         float64
}

const (
	maxSourceQuestionLen = 500
	maxChineseQuestionLen = 500
	maxAnswerLen          = 2000
)

// Store is the KnowledgeStore: every operation is serialized under a
// single mutex and shares one persistent connection — the store is
// never the throughput bottleneck, so this simplicity is deliberate.
type Store struct {
	db       *sql.DB
	driver   string
	hasFTS   bool
	mu       sync.Mutex
}

// New opens a Store against db. driver is "sqlite", "postgres", or
// "mysql" — only "sqlite"/"sqlite3" gets the FTS5 fast path; the other
// two dialects always use the substring fallback, which is itself a
// conformant implementation of "graceful fallback ... when the query
// cannot be constructed safely" since FTS5 is a SQLite-only extension.
func New(db *sql.DB, driver string) (*Store, error) {
	s := &Store{db: db, driver: driver, hasFTS: driver == "sqlite" || driver == "sqlite3"}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.driver {
	case "postgres":
		idColumn = "id SERIAL PRIMARY KEY"
	case "mysql":
		idColumn = "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS knowledge (
			%s,
			source_lang_question TEXT NOT NULL DEFAULT '',
			chinese_question TEXT NOT NULL DEFAULT '',
			chinese_answer TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'agent_auto',
			hits INTEGER NOT NULL DEFAULT 0,
			upvotes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`, idColumn))
	if err != nil {
		return fmt.Errorf("knowledge: init schema: %w", err)
	}

	uniqueIdx := `CREATE UNIQUE INDEX IF NOT EXISTS idx_knowledge_fingerprint ON knowledge(fingerprint)`
	if _, err := s.db.Exec(uniqueIdx); err != nil {
		return fmt.Errorf("knowledge: init fingerprint index: %w", err)
	}

	if s.hasFTS {
		_, err := s.db.Exec(`
			CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts
			USING fts5(question_all, answer_zh)
		`)
		if err != nil {
			// A SQLite build without FTS5 compiled in is still a valid
			// deployment target; degrade to substring-only silently.
			s.hasFTS = false
		}
	}

	return nil
}

func fingerprint(normalizedChineseQuestion string) string {
	sum := sha256.Sum256([]byte(normalizedChineseQuestion))
	return hex.EncodeToString(sum[:])
}

func normalize(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return string(runes)
}

// UpsertQA inserts a new entry or merges into the existing one sharing
// chineseQuestion's fingerprint. Returns ok=false with
// no effect when chineseQuestion or chineseAnswer is empty after
// normalization.
func (s *Store) UpsertQA(ctx context.Context, sourceLangQuestion, chineseQuestion, chineseAnswer, source string) (id int64, ok bool, err error) {
	sourceLangQuestion = normalize(sourceLangQuestion, maxSourceQuestionLen)
	chineseQuestion = normalize(chineseQuestion, maxChineseQuestionLen)
	chineseAnswer = normalize(chineseAnswer, maxAnswerLen)
	if chineseQuestion == "" || chineseAnswer == "" {
		return 0, false, nil
	}
	if source == "" {
		source = "agent_auto"
	}

	fp := fingerprint(chineseQuestion)
	now := time.Now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	defer s.mu.Unlock()

	q := dbpool.Rebind(s.driver, `SELECT id, source_lang_question FROM knowledge WHERE fingerprint = ?`)
	var existingID int64
	var existingSourceQ string
	err = s.db.QueryRowContext(ctx, q, fp).Scan(&existingID, &existingSourceQ)

	switch {
	case err == sql.ErrNoRows:
		insert := dbpool.Rebind(s.driver, `
			INSERT INTO knowledge(source_lang_question, chinese_question, chinese_answer, fingerprint, source, hits, upvotes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?)
		`)
		res, ierr := s.db.ExecContext(ctx, insert, sourceLangQuestion, chineseQuestion, chineseAnswer, fp, source, now, now)
		if ierr != nil {
			return 0, false, fmt.Errorf("knowledge: insert: %w", ierr)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("knowledge: last insert id: %w", err)
		}
	case err != nil:
		return 0, false, fmt.Errorf("knowledge: lookup fingerprint: %w", err)
	default:
		id = existingID
		if existingSourceQ == "" && sourceLangQuestion != "" {
			upd := dbpool.Rebind(s.driver, `UPDATE knowledge SET chinese_answer = ?, source_lang_question = ?, upvotes = upvotes + 1, updated_at = ? WHERE id = ?`)
			_, err = s.db.ExecContext(ctx, upd, chineseAnswer, sourceLangQuestion, now, id)
		} else {
			upd := dbpool.Rebind(s.driver, `UPDATE knowledge SET chinese_answer = ?, upvotes = upvotes + 1, updated_at = ? WHERE id = ?`)
			_, err = s.db.ExecContext(ctx, upd, chineseAnswer, now, id)
		}
		if err != nil {
			return 0, false, fmt.Errorf("knowledge: update: %w", err)
		}
	}

	if s.hasFTS {
		combined := strings.TrimSpace(sourceLangQuestion + " " + chineseQuestion)
		if existingSourceQ != "" {
			combined = strings.TrimSpace(existingSourceQ + " " + chineseQuestion)
		}
		// FTS sync failures never block the learning write itself.
		_, _ = s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO knowledge_fts(rowid, question_all, answer_zh) VALUES(?, ?, ?)`,
			id, combined, chineseAnswer)
	}

	return id, true, nil
}

type candidate struct {
	id    int64
	zh    string
	score float64
}

// RetrieveBest returns the best-matching entry for either query
// variant, preferring full-text relevance and falling back to a safe
// substring match. Returns (nil, nil) when nothing matches.
func (s *Store) RetrieveBest(ctx context.Context, sourceLangQuery, chineseQuery string, k int) (*Match, error) {
	if k <= 0 {
		k = 3
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var all []candidate
	for _, q := range []string{sourceLangQuery, chineseQuery} {
		if strings.TrimSpace(q) == "" {
			continue
		}
		cands, err := s.searchVariant(ctx, q, k)
		if err != nil {
			return nil, fmt.Errorf("knowledge: search: %w", err)
		}
		all = append(all, cands...)
	}
	if len(all) == 0 {
		return nil, nil
	}

	best := all[0]
	for _, c := range all[1:] {
		if c.score < best.score || (c.score == best.score && c.id < best.id) {
			best = c
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	upd := dbpool.Rebind(s.driver, `UPDATE knowledge SET hits = hits + 1, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, upd, now, best.id); err != nil {
		return nil, fmt.Errorf("knowledge: bump hits: %w", err)
	}

	return &Match{ID: best.id, ChineseAnswer: best.zh, Score: best.score}, nil
}

func (s *Store) searchVariant(ctx context.Context, raw string, k int) ([]candidate, error) {
	if s.hasFTS {
		if ftsQuery := buildFTSQuery(raw); ftsQuery != "" {
			cands, err := s.searchFTS(ctx, ftsQuery, k)
			if err == nil {
				return cands, nil
			}
			// FTS parser error: fall through to substring match.
		}
	}
	return s.searchSubstring(ctx, raw, k)
}

func (s *Store) searchFTS(ctx context.Context, ftsQuery string, k int) ([]candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, answer_zh, bm25(knowledge_fts) AS score
		FROM knowledge_fts
		WHERE knowledge_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.zh, &c.score); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) searchSubstring(ctx context.Context, raw string, k int) ([]candidate, error) {
	pattern := substringPattern(raw)
	if pattern == "%%" {
		return nil, nil
	}
	q := dbpool.Rebind(s.driver, `
		SELECT id, chinese_answer, 1.0 AS score
		FROM knowledge
		WHERE source_lang_question LIKE ? OR chinese_question LIKE ?
		ORDER BY hits DESC, id DESC
		LIMIT ?
	`)
	rows, err := s.db.QueryContext(ctx, q, pattern, pattern, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.zh, &c.score); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
