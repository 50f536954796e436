package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Local is the embedded vector store: one SQLite file with a vec0 virtual
// table per collection. It serves the local-path deployment mode where no
// Qdrant host is configured.
type Local struct {
	db *sql.DB
}

// knnOverfetch is how many candidates a filtered KNN pulls before the
// payload filter is applied; matches beyond it are lost, which is
// acceptable for top-k result shaping.
const knnOverfetch = 20

// OpenLocal opens (or creates) the embedded store at dir/reporter.db.
func OpenLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vector store directory: %w", err)
	}
	path := filepath.Join(dir, "reporter.db")

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging vector store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name   TEXT PRIMARY KEY,
			dim    INTEGER NOT NULL,
			metric TEXT NOT NULL DEFAULT 'cosine'
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collections table: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Local{db: db}, nil
}

// Close closes the underlying database.
func (l *Local) Close() error {
	return l.db.Close()
}

// tableName maps a collection name to a safe SQL identifier prefix.
func tableName(collection, suffix string) string {
	var b strings.Builder
	for _, r := range collection {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return `"` + b.String() + suffix + `"`
}

// EnsureCollection creates the payload and vec0 tables for a collection.
// Idempotent; an existing collection with another dimension is fatal.
func (l *Local) EnsureCollection(ctx context.Context, name string, dim int) error {
	var existing int
	err := l.db.QueryRowContext(ctx,
		`SELECT dim FROM collections WHERE name = ?`, name).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("checking collection %s: %w", name, err)
	case existing != dim:
		return fmt.Errorf("%w: collection %s has dim %d, want %d",
			ErrDimensionMismatch, name, existing, dim)
	default:
		return nil
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id       INTEGER PRIMARY KEY,
			chunk_id TEXT NOT NULL UNIQUE,
			payload  JSON NOT NULL
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			embedding float[%d] distance_metric=cosine
		);`,
		tableName(name, "_chunks"), tableName(name, "_vec"), dim)
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	if _, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dim, metric) VALUES (?, ?, 'cosine')`,
		name, dim); err != nil {
		return fmt.Errorf("registering collection %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a chunk ID is stored in the collection. An absent
// collection reports false rather than an error so duplicate detection can
// run before the first ingest.
func (l *Local) Exists(ctx context.Context, collection, chunkID string) (bool, error) {
	if ok, err := l.hasCollection(ctx, collection); err != nil || !ok {
		return false, err
	}
	var n int
	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE chunk_id = ?`, tableName(collection, "_chunks")),
		chunkID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking chunk %s: %w", chunkID, err)
	}
	return n > 0, nil
}

// BatchUpsert writes each point in its own transaction: payload row and
// vector stay consistent per point, and one bad point does not abort the
// rest of the batch.
func (l *Local) BatchUpsert(ctx context.Context, collection string, points []Point, onProgress ProgressFunc) (UpsertResult, error) {
	var res UpsertResult
	chunksTable := tableName(collection, "_chunks")
	vecTable := tableName(collection, "_vec")

	for i, p := range points {
		if err := l.upsertOne(ctx, chunksTable, vecTable, p, &res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.ChunkID, err))
		}
		if onProgress != nil {
			onProgress(i+1, len(points))
		}
	}
	return res, nil
}

func (l *Local) upsertOne(ctx context.Context, chunksTable, vecTable string, p Point, res *UpsertResult) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing sql.NullInt64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE chunk_id = ?`, chunksTable), p.ChunkID).
		Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	var rowID int64
	if existing.Valid {
		rowID = existing.Int64
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET payload = ? WHERE id = ?`, chunksTable),
			string(payload), rowID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecTable), rowID); err != nil {
			return err
		}
	} else {
		ins, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (chunk_id, payload) VALUES (?, ?)`, chunksTable),
			p.ChunkID, string(payload))
		if err != nil {
			return err
		}
		if rowID, err = ins.LastInsertId(); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (rowid, embedding) VALUES (?, ?)`, vecTable),
		rowID, serializeFloat32(p.Vector)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if existing.Valid {
		res.Skipped++
	} else {
		res.Written++
	}
	return nil
}

// SemanticSearch runs a KNN query over the vec0 table, applying the filter
// as a rowid pre-constraint so filtered searches stay exact up to the
// overfetch window.
func (l *Local) SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]Hit, error) {
	if ok, err := l.hasCollection(ctx, collection); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}

	chunksTable := tableName(collection, "_chunks")
	vecTable := tableName(collection, "_vec")

	k := limit
	where, args := filterSQL(filter)
	var sub string
	if where != "" {
		sub = fmt.Sprintf(` AND v.rowid IN (SELECT id FROM %s WHERE %s)`, chunksTable, where)
		k = limit * knnOverfetch
	}

	query := fmt.Sprintf(`
		SELECT c.chunk_id, v.distance, c.payload
		FROM %s v
		JOIN %s c ON c.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?%s
		ORDER BY v.distance
		LIMIT ?`, vecTable, chunksTable, sub)

	qargs := append([]any{serializeFloat32(vector), k}, args...)
	qargs = append(qargs, limit)
	rows, err := l.db.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h        Hit
			distance float64
			payload  string
		)
		if err := rows.Scan(&h.ChunkID, &distance, &payload); err != nil {
			return nil, err
		}
		h.Score = 1.0 - distance // cosine distance to similarity
		if err := json.Unmarshal([]byte(payload), &h.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload %s: %w", h.ChunkID, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// filterSQL renders the filter AST as a WHERE fragment over the payload
// JSON column. json_each handles both scalar and array fields for
// set-membership.
func filterSQL(f *Filter) (string, []any) {
	if f.Empty() {
		return "", nil
	}
	var (
		clauses []string
		args    []any
	)
	for _, c := range f.conds {
		switch c := c.(type) {
		case eqCond:
			clauses = append(clauses, fmt.Sprintf(`json_extract(payload, '$.%s') = ?`, c.field))
			args = append(args, c.value)
		case inCond:
			ph := strings.TrimPrefix(strings.Repeat(", ?", len(c.values)), ", ")
			clauses = append(clauses, fmt.Sprintf(
				`EXISTS (SELECT 1 FROM json_each(payload, '$.%s') WHERE json_each.value IN (%s))`,
				c.field, ph))
			for _, v := range c.values {
				args = append(args, v)
			}
		case dateRangeCond:
			if c.gte != "" {
				clauses = append(clauses, fmt.Sprintf(`json_extract(payload, '$.%s') >= ?`, c.field))
				args = append(args, c.gte)
			}
			if c.lte != "" {
				clauses = append(clauses, fmt.Sprintf(`json_extract(payload, '$.%s') <= ?`, c.field))
				args = append(args, c.lte)
			}
		}
	}
	return strings.Join(clauses, " AND "), args
}

// GetByID returns one stored payload by chunk ID.
func (l *Local) GetByID(ctx context.Context, collection, chunkID string) (*Hit, error) {
	if ok, err := l.hasCollection(ctx, collection); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}

	var payload string
	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE chunk_id = ?`, tableName(collection, "_chunks")),
		chunkID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s: %w", chunkID, err)
	}

	h := &Hit{ChunkID: chunkID}
	if err := json.Unmarshal([]byte(payload), &h.Payload); err != nil {
		return nil, fmt.Errorf("decoding payload %s: %w", chunkID, err)
	}
	return h, nil
}

// Sample returns up to limit stored payloads in insertion order.
func (l *Local) Sample(ctx context.Context, collection string, limit int) ([]Hit, error) {
	if ok, err := l.hasCollection(ctx, collection); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}

	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT chunk_id, payload FROM %s ORDER BY id LIMIT ?`, tableName(collection, "_chunks")),
		limit)
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h       Hit
			payload string
		)
		if err := rows.Scan(&h.ChunkID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &h.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload %s: %w", h.ChunkID, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ListCollections returns every registered collection with its point count.
func (l *Local) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name, dim, metric FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Dim, &info.Metric); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range infos {
		err := l.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableName(infos[i].Name, "_chunks"))).
			Scan(&infos[i].Count)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", infos[i].Name, err)
		}
	}
	return infos, nil
}

// DeleteCollection drops a collection's tables and registration.
func (l *Local) DeleteCollection(ctx context.Context, name string) error {
	if ok, err := l.hasCollection(ctx, name); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: collection %s", ErrNotFound, name)
	}

	ddl := fmt.Sprintf(`DROP TABLE IF EXISTS %s; DROP TABLE IF EXISTS %s;`,
		tableName(name, "_vec"), tableName(name, "_chunks"))
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("unregistering collection %s: %w", name, err)
	}
	return nil
}

func (l *Local) hasCollection(ctx context.Context, name string) (bool, error) {
	var n int
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collections WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return n > 0, nil
}

// serializeFloat32 converts a vector to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
