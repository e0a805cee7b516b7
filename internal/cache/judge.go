package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// JudgeCache is a SQLite-backed cache for judge verdicts, keyed by
// (content hash, rubric, model). Identical judge inputs reuse the stored
// verdict instead of spending another model call.
type JudgeCache struct {
	db *sql.DB
}

// JudgeCacheEntry is one cached judge verdict.
type JudgeCacheEntry struct {
	Score     float64
	Verdict   string
	Reasoning string
}

// NewJudgeCache opens (or creates) a judge cache at dbPath.
func NewJudgeCache(dbPath string) (*JudgeCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS judge_results (
			content_hash TEXT NOT NULL,
			rubric       TEXT NOT NULL,
			model        TEXT NOT NULL,
			score        REAL NOT NULL,
			verdict      TEXT NOT NULL,
			reasoning    TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (content_hash, rubric, model)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create judge_results table: %w", err)
	}

	return &JudgeCache{db: db}, nil
}

// JudgeContentHash returns the cache key hash for judge input content.
func JudgeContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for the key, or (nil, nil) on a miss.
func (c *JudgeCache) Get(contentHash, rubric, model string) (*JudgeCacheEntry, error) {
	var e JudgeCacheEntry
	err := c.db.QueryRow(
		`SELECT score, verdict, reasoning FROM judge_results
		 WHERE content_hash = ? AND rubric = ? AND model = ?`,
		contentHash, rubric, model,
	).Scan(&e.Score, &e.Verdict, &e.Reasoning)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("judge cache get: %w", err)
	}
	return &e, nil
}

// Put stores (or replaces) a judge verdict.
func (c *JudgeCache) Put(contentHash, rubric, model string, entry *JudgeCacheEntry) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO judge_results
		 (content_hash, rubric, model, score, verdict, reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contentHash, rubric, model, entry.Score, entry.Verdict, entry.Reasoning, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("judge cache put: %w", err)
	}
	return nil
}

// Clear removes all cached verdicts.
func (c *JudgeCache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM judge_results`); err != nil {
		return fmt.Errorf("judge cache clear: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *JudgeCache) Close() error {
	return c.db.Close()
}
