package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"

	"github.com/evidentia-hq/evidentia/internal/evidence"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stage_results (
	paper_path TEXT NOT NULL,
	stage      TEXT NOT NULL,
	text       TEXT NOT NULL DEFAULT '',
	structured TEXT,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (paper_path, stage)
);
`

// SQLiteStore is a write-through stage-result store: SQLite for
// durability, an in-process cache in front for repeat reads during a
// session.
type SQLiteStore struct {
	db  *sqlx.DB
	mem *gocache.Cache
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{
		db:  db,
		mem: gocache.New(15*time.Minute, 30*time.Minute),
	}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func memKey(paperPath string, stage evidence.StageName) string {
	return paperPath + "\x00" + string(stage)
}

func (s *SQLiteStore) Get(ctx context.Context, paperPath string, stage evidence.StageName) (*Record, error) {
	if v, ok := s.mem.Get(memKey(paperPath, stage)); ok {
		rec := v.(Record)
		return &rec, nil
	}
	var row struct {
		Text       string         `db:"text"`
		Structured sql.NullString `db:"structured"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT text, structured FROM stage_results WHERE paper_path = ? AND stage = ?",
		paperPath, string(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage result: %w", err)
	}
	rec := Record{Text: row.Text}
	if row.Structured.Valid && row.Structured.String != "" {
		rec.Structured = json.RawMessage(row.Structured.String)
	}
	s.mem.Set(memKey(paperPath, stage), rec, gocache.DefaultExpiration)
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, paperPath string, stage evidence.StageName, rec Record) error {
	var structured any
	if len(rec.Structured) > 0 {
		structured = string(rec.Structured)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_results (paper_path, stage, text, structured, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(paper_path, stage) DO UPDATE SET
			text = excluded.text,
			structured = excluded.structured,
			updated_at = excluded.updated_at`,
		paperPath, string(stage), rec.Text, structured, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put stage result: %w", err)
	}
	s.mem.Set(memKey(paperPath, stage), rec, gocache.DefaultExpiration)
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, paperPath string, stage evidence.StageName) (bool, error) {
	if _, ok := s.mem.Get(memKey(paperPath, stage)); ok {
		return true, nil
	}
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(1) FROM stage_results WHERE paper_path = ? AND stage = ?",
		paperPath, string(stage))
	if err != nil {
		return false, fmt.Errorf("exists stage result: %w", err)
	}
	return n > 0, nil
}

// Delete removes a cached stage result; used by user-triggered retry to
// clear failure state.
func (s *SQLiteStore) Delete(ctx context.Context, paperPath string, stage evidence.StageName) error {
	s.mem.Delete(memKey(paperPath, stage))
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM stage_results WHERE paper_path = ? AND stage = ?",
		paperPath, string(stage))
	if err != nil {
		return fmt.Errorf("delete stage result: %w", err)
	}
	return nil
}
