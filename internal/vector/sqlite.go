package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"graphrag/internal/logging"
)

func init() {
	// Registers the sqlite-vec extension with the sqlite3 driver so that
	// vec_distance_cosine is available on every connection.
	vec.Auto()
}

// =============================================================================
// SQLITE VECTOR STORE
// =============================================================================

// SQLiteStore is an embedded vector index backed by SQLite with the
// sqlite-vec extension. Suitable for single-binary installs where running a
// Qdrant instance is not wanted.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the store at path. Use ":memory:" for
// an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "graphrag-vectors.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	// Single writer; WAL keeps readers unblocked during upserts.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dims INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		payload    TEXT,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_points_collection ON points(collection);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector schema: %w", err)
	}

	logging.Vector("SQLite vector store opened at %s", path)
	return &SQLiteStore{db: db}, nil
}

// EnsureCollection registers the collection if absent.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, dims) VALUES (?, ?)", name, dims)
	if err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", name, err)
	}
	return nil
}

// CollectionExists reports whether the collection is registered.
func (s *SQLiteStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM collections WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Upsert inserts or replaces points in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryVector, "SQLiteStore.Upsert")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO points (collection, id, embedding, payload) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, p.ID, encodeVector(p.Vector), string(payloadJSON)); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	logging.VectorDebug("Upserted %d points into %s", len(points), collection)
	return nil
}

// Search scans the collection ordered by cosine distance. Payload filters
// are applied in process after the distance scan.
func (s *SQLiteStore) Search(ctx context.Context, collection string, vecQuery []float32, limit int, threshold float64, filter map[string]interface{}) ([]ScoredPoint, error) {
	timer := logging.StartTimer(logging.CategoryVector, "SQLiteStore.Search")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, payload, vec_distance_cosine(embedding, ?) AS distance
		FROM points
		WHERE collection = ?
		ORDER BY distance ASC
	`
	args := []interface{}{encodeVector(vecQuery), collection}
	if len(filter) == 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search in %s failed: %w", collection, err)
	}
	defer rows.Close()

	var results []ScoredPoint
	for rows.Next() {
		var (
			id          string
			payloadJSON sql.NullString
			distance    float64
		)
		if err := rows.Scan(&id, &payloadJSON, &distance); err != nil {
			logging.Get(logging.CategoryVector).Warn("Failed to scan search row: %v", err)
			continue
		}

		score := 1.0 - distance
		if threshold > 0 && score < threshold {
			break // rows are ordered by distance; everything after is worse
		}

		var payload map[string]interface{}
		if payloadJSON.Valid && payloadJSON.String != "" {
			json.Unmarshal([]byte(payloadJSON.String), &payload)
		}
		if len(filter) > 0 && !payloadMatches(payload, filter) {
			continue
		}

		results = append(results, ScoredPoint{ID: id, Score: score, Payload: payload})
		if len(results) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.VectorDebug("Search in %s returned %d hits", collection, len(results))
	return results, nil
}

// Delete removes points by ID.
func (s *SQLiteStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM points WHERE collection = ? AND id = ?", collection, id); err != nil {
			return fmt.Errorf("failed to delete point %s: %w", id, err)
		}
	}
	return nil
}

// Count returns the number of points in the collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM points WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// encodeVector serializes a float32 slice into the little-endian blob
// format sqlite-vec expects.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
