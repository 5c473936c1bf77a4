// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
//
// Facts live in a single table with the embedding stored as a little-endian
// float32 BLOB. Similarity queries run entirely in SQL via sqlite-vec's
// vec_distance_cosine scalar over the owner's rows, so owner scoping is a
// WHERE clause, never a post-filter.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db         *sql.DB
	dimensions int
	logger     *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions int
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connections to have the sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", vector.ErrUnavailable, err)
	}

	// SQLite is single-writer; a second pooled connection would also see a
	// different database entirely when DBPath is ":memory:".
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vec not available: %v", vector.ErrUnavailable, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating facts table: %v", vector.ErrUnavailable, err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_facts_owner ON facts(owner)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating owner index: %v", vector.ErrUnavailable, err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Int("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (d *Driver) checkDims(embedding []float32) error {
	if len(embedding) != d.dimensions {
		return fmt.Errorf("%w: got %d, store expects %d",
			vector.ErrDimensionMismatch, len(embedding), d.dimensions)
	}
	return nil
}

// Upsert writes facts keyed by id, overwriting existing records.
func (d *Driver) Upsert(ctx context.Context, facts []fact.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", vector.ErrUnavailable, err)
	}
	defer tx.Rollback()

	for _, f := range facts {
		if err := d.checkDims(f.Embedding); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO facts (id, owner, content, category, status, embedding, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner = excluded.owner,
				content = excluded.content,
				category = excluded.category,
				status = excluded.status,
				embedding = excluded.embedding,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at
		`, f.ID, f.Owner, f.Content, string(f.Category), string(f.Status),
			serializeFloat32(f.Embedding), f.CreatedAt, f.UpdatedAt)
		if err != nil {
			return fmt.Errorf("%w: upserting fact %s: %v", vector.ErrUnavailable, f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", vector.ErrUnavailable, err)
	}

	d.logger.Debug("upserted facts into sqlite-vec",
		zap.Int("count", len(facts)),
	)

	return nil
}

// Query returns the owner's nearest facts by cosine distance.
func (d *Driver) Query(ctx context.Context, owner string, embedding []float32, limit int) ([]vector.QueryResult, error) {
	if err := d.checkDims(embedding); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			id, owner, content, category, status, embedding, created_at, updated_at,
			vec_distance_cosine(embedding, ?) AS distance
		FROM facts
		WHERE owner = ?
		ORDER BY distance ASC, created_at DESC
		LIMIT ?
	`, serializeFloat32(embedding), owner, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", vector.ErrUnavailable, err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			f        fact.Fact
			category string
			status   string
			embBlob  []byte
			distance float64
		)
		if err := rows.Scan(&f.ID, &f.Owner, &f.Content, &category, &status,
			&embBlob, &f.CreatedAt, &f.UpdatedAt, &distance); err != nil {
			return nil, fmt.Errorf("%w: scanning query result: %v", vector.ErrUnavailable, err)
		}

		f.Category = fact.Category(category)
		f.Status = fact.Status(status)
		if f.Embedding, err = deserializeFloat32(embBlob); err != nil {
			return nil, fmt.Errorf("%w: fact %s: %v", vector.ErrUnavailable, f.ID, err)
		}

		results = append(results, vector.QueryResult{Fact: f, Distance: float32(distance)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating query results: %v", vector.ErrUnavailable, err)
	}

	d.logger.Debug("queried sqlite-vec",
		zap.String("owner", owner),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves the owner's facts with the given ids.
func (d *Driver) Get(ctx context.Context, owner string, ids []string) ([]fact.Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, owner, content, category, status, embedding, created_at, updated_at
		FROM facts
		WHERE owner = ? AND id IN (%s)
	`, strings.Join(placeholders, ","))

	return d.scanFacts(ctx, query, args...)
}

// UpdateStatus transitions a fact's status, touching only status and
// updated_at.
func (d *Driver) UpdateStatus(ctx context.Context, id string, status fact.Status, updatedAt time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE facts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), updatedAt, id)
	if err != nil {
		return fmt.Errorf("%w: updating status for fact %s: %v", vector.ErrUnavailable, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: checking rows affected: %v", vector.ErrUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}
	return nil
}

// List returns all of the owner's facts ordered by created_at descending.
func (d *Driver) List(ctx context.Context, owner string) ([]fact.Fact, error) {
	return d.scanFacts(ctx, `
		SELECT id, owner, content, category, status, embedding, created_at, updated_at
		FROM facts
		WHERE owner = ?
		ORDER BY created_at DESC
	`, owner)
}

// Purge removes every fact belonging to the owner.
func (d *Driver) Purge(ctx context.Context, owner string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM facts WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("%w: purging facts for owner: %v", vector.ErrUnavailable, err)
	}
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) scanFacts(ctx context.Context, query string, args ...any) ([]fact.Fact, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying facts: %v", vector.ErrUnavailable, err)
	}
	defer rows.Close()

	var facts []fact.Fact
	for rows.Next() {
		var (
			f        fact.Fact
			category string
			status   string
			embBlob  []byte
		)
		if err := rows.Scan(&f.ID, &f.Owner, &f.Content, &category, &status,
			&embBlob, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning fact: %v", vector.ErrUnavailable, err)
		}

		f.Category = fact.Category(category)
		f.Status = fact.Status(status)
		if f.Embedding, err = deserializeFloat32(embBlob); err != nil {
			return nil, fmt.Errorf("%w: fact %s: %v", vector.ErrUnavailable, f.ID, err)
		}
		facts = append(facts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating facts: %v", vector.ErrUnavailable, err)
	}
	return facts, nil
}

var _ vector.Driver = (*Driver)(nil)
