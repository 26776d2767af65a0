// Package store persists submitted forecasts to a local SQLite journal so a
// tournament run leaves an auditable trail for later calibration review.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"prognos/internal/forecast"
)

// Journal records aggregate forecasts.
type Journal struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Entry is one journaled forecast.
type Entry struct {
	ID         int64
	QuestionID string
	Kind       forecast.QuestionKind
	Degraded   bool
	Payload    forecast.AggregateForecast
	CreatedAt  time.Time
}

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j := &Journal{db: db, dbPath: path}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS forecasts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_forecasts_question ON forecasts(question_id);
	CREATE INDEX IF NOT EXISTS idx_forecasts_created ON forecasts(created_at);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// journalPayload is the stored JSON shape. Kept separate from the domain
// type so schema evolution never forces a domain change.
type journalPayload struct {
	Prob       *float64           `json:"prob,omitempty"`
	CDF        []float64          `json:"cdf,omitempty"`
	Categories map[string]float64 `json:"categories,omitempty"`
}

// Record appends one forecast.
func (j *Journal) Record(ctx context.Context, questionID string, agg forecast.AggregateForecast) (int64, error) {
	payload, err := json.Marshal(journalPayload{
		Prob:       agg.Prob,
		CDF:        agg.CDF,
		Categories: agg.Categories,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode forecast payload: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO forecasts (question_id, kind, degraded, payload) VALUES (?, ?, ?, ?)`,
		questionID, string(agg.Kind), boolToInt(agg.Degraded), string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to record forecast: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, question_id, kind, degraded, payload, created_at
		 FROM forecasts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByQuestion returns all entries for one question, oldest first.
func (j *Journal) ByQuestion(ctx context.Context, questionID string) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, question_id, kind, degraded, payload, created_at
		 FROM forecasts WHERE question_id = ? ORDER BY id ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e        Entry
			kind     string
			degraded int
			payload  string
		)
		if err := rows.Scan(&e.ID, &e.QuestionID, &kind, &degraded, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}

		var p journalPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("corrupt journal payload for entry %d: %w", e.ID, err)
		}

		e.Kind = forecast.QuestionKind(kind)
		e.Degraded = degraded != 0
		e.Payload = forecast.AggregateForecast{
			Kind:       e.Kind,
			Prob:       p.Prob,
			CDF:        p.CDF,
			Categories: p.Categories,
			Degraded:   e.Degraded,
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
