package embeddings

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

// CachedExtractor wraps an Extractor with a content-hash based SQLite cache.
// Keys include the transform fingerprint, so a changed transform never
// serves stale vectors.
type CachedExtractor struct {
	inner  Extractor
	db     *sql.DB
	logger *slog.Logger
}

// NewCachedExtractor creates a cached wrapper around an extractor.
// The cachePath should point to a SQLite database file.
func NewCachedExtractor(inner Extractor, cachePath string) (*CachedExtractor, error) {
	db, err := sql.Open("sqlite3", cachePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &CachedExtractor{inner: inner, db: db, logger: slog.Default()}, nil
}

// Embed returns a cached embedding for image or computes and stores it.
func (c *CachedExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	hash := c.contentHash(image)

	if emb, err := c.get(ctx, hash); err == nil {
		return emb, nil
	}

	emb, err := c.inner.Embed(ctx, image)
	if err != nil {
		return nil, err
	}

	if err := c.put(ctx, hash, emb); err != nil {
		c.logger.Debug("embedding cache write failed", "error", err)
	}
	return emb, nil
}

// Dimensions returns the embedding vector dimension.
func (c *CachedExtractor) Dimensions() int {
	return c.inner.Dimensions()
}

// Fingerprint returns the inner extractor's fingerprint.
func (c *CachedExtractor) Fingerprint() string {
	return c.inner.Fingerprint()
}

// Close closes the cache database and the inner extractor.
func (c *CachedExtractor) Close() error {
	dbErr := c.db.Close()
	if err := c.inner.Close(); err != nil {
		return err
	}
	return dbErr
}

func (c *CachedExtractor) contentHash(image []byte) string {
	h := sha256.New()
	h.Write([]byte(c.inner.Fingerprint()))
	h.Write([]byte{0})
	h.Write(image)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *CachedExtractor) get(ctx context.Context, hash string) ([]float32, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, "SELECT embedding FROM embedding_cache WHERE content_hash = ?", hash).Scan(&blob)
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(blob), nil
}

func (c *CachedExtractor) put(ctx context.Context, hash string, embedding []float32) error {
	blob := encodeEmbedding(embedding)
	_, err := c.db.ExecContext(ctx, "INSERT OR REPLACE INTO embedding_cache (content_hash, embedding) VALUES (?, ?)", hash, blob)
	return err
}

// encodeEmbedding converts float32 slice to a compact binary representation.
func encodeEmbedding(emb []float32) []byte {
	buf := make([]byte, len(emb)*4)
	for i, v := range emb {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding converts binary representation back to float32 slice.
func decodeEmbedding(buf []byte) []float32 {
	emb := make([]float32, len(buf)/4)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return emb
}
