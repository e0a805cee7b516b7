package cache

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// EmbeddingCache is an LRU-evicting SQLite-backed cache for embedding
// vectors, keyed by (content hash, model).
type EmbeddingCache struct {
	db    *sql.DB
	maxMB int
}

// NewEmbeddingCache opens (or creates) an embedding cache at dbPath.
// maxMB sets the maximum size in megabytes before LRU eviction triggers.
func NewEmbeddingCache(dbPath string, maxMB int) (*EmbeddingCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			content_hash TEXT NOT NULL,
			model        TEXT NOT NULL,
			vector       BLOB NOT NULL,
			accessed_at  INTEGER NOT NULL,
			PRIMARY KEY (content_hash, model)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create embeddings table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_embeddings_accessed ON embeddings(accessed_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create embeddings index: %w", err)
	}

	return &EmbeddingCache{db: db, maxMB: maxMB}, nil
}

// Get returns the cached vector for the key, or (nil, nil) on a miss.
func (c *EmbeddingCache) Get(contentHash, model string) ([]float32, error) {
	var blob []byte
	err := c.db.QueryRow(
		`SELECT vector FROM embeddings WHERE content_hash = ? AND model = ?`,
		contentHash, model,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache get: %w", err)
	}

	_, err = c.db.Exec(
		`UPDATE embeddings SET accessed_at = ? WHERE content_hash = ? AND model = ?`,
		time.Now().UnixNano(), contentHash, model,
	)
	if err != nil {
		return nil, fmt.Errorf("embedding cache touch: %w", err)
	}

	return decodeVector(blob), nil
}

// Put stores a vector and evicts least-recently-used rows if the cache
// exceeds its size budget.
func (c *EmbeddingCache) Put(contentHash, model string, vector []float32) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO embeddings (content_hash, model, vector, accessed_at)
		 VALUES (?, ?, ?, ?)`,
		contentHash, model, encodeVector(vector), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("embedding cache put: %w", err)
	}
	return c.evict()
}

// evict removes least-recently-accessed rows until the stored bytes fit
// within maxMB. A maxMB of zero disables eviction.
func (c *EmbeddingCache) evict() error {
	if c.maxMB <= 0 {
		return nil
	}
	limit := int64(c.maxMB) * 1024 * 1024

	for {
		var total sql.NullInt64
		if err := c.db.QueryRow(`SELECT SUM(LENGTH(vector)) FROM embeddings`).Scan(&total); err != nil {
			return fmt.Errorf("embedding cache size: %w", err)
		}
		if !total.Valid || total.Int64 <= limit {
			return nil
		}
		res, err := c.db.Exec(
			`DELETE FROM embeddings WHERE rowid IN
			 (SELECT rowid FROM embeddings ORDER BY accessed_at ASC LIMIT 16)`,
		)
		if err != nil {
			return fmt.Errorf("embedding cache evict: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
	}
}

// Close closes the underlying database.
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
