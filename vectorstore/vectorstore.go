// Package vectorstore persists chunk vectors and payloads and answers
// filtered cosine-similarity searches. Two backends implement the Store
// interface: a remote Qdrant instance over gRPC and an embedded sqlite-vec
// database for local-path deployments. Both honor the same filter AST and
// the same payload model.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a chunk or collection does not exist.
	ErrNotFound = errors.New("vectorstore: not found")

	// ErrDimensionMismatch is returned when a collection already exists with
	// a different vector size. Fatal: re-ingestion cannot proceed.
	ErrDimensionMismatch = errors.New("vectorstore: collection dimension mismatch")
)

// Point is one chunk ready for upsert: deterministic chunk ID, embedding
// vector, and the flat payload stored beside it.
type Point struct {
	ChunkID string
	Vector  []float32
	Payload map[string]any
}

// Hit is one search or lookup result.
type Hit struct {
	ChunkID string
	Score   float64
	Payload map[string]any
}

// UpsertResult tallies a batch upsert. A point is either fully written or
// reported in Errors; the batch as a whole is not atomic.
type UpsertResult struct {
	Written int
	Skipped int
	Errors  []string
}

// CollectionInfo describes one collection for inventory listings.
type CollectionInfo struct {
	Name   string
	Count  int64
	Dim    int
	Metric string
}

// ProgressFunc reports batch-upsert progress as (done, total) points.
type ProgressFunc func(done, total int)

// Store is the vector-database surface the pipeline and the MCP server
// depend on.
type Store interface {
	// EnsureCollection creates the collection with cosine distance if it is
	// absent. An existing collection with a different vector size returns
	// ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Exists reports whether a chunk ID is already stored.
	Exists(ctx context.Context, collection, chunkID string) (bool, error)

	// BatchUpsert writes points under their deterministic IDs. Re-upserting
	// the same points is idempotent.
	BatchUpsert(ctx context.Context, collection string, points []Point, onProgress ProgressFunc) (UpsertResult, error)

	// SemanticSearch returns the top-k hits by cosine similarity, optionally
	// restricted by a filter.
	SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]Hit, error)

	// GetByID returns a single stored payload, or ErrNotFound.
	GetByID(ctx context.Context, collection, chunkID string) (*Hit, error)

	// Sample returns up to limit stored payloads for inspection, in no
	// particular order.
	Sample(ctx context.Context, collection string, limit int) ([]Hit, error)

	ListCollections(ctx context.Context) ([]CollectionInfo, error)

	// DeleteCollection removes a collection and its points; absent
	// collections return ErrNotFound.
	DeleteCollection(ctx context.Context, name string) error

	Close() error
}
