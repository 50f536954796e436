package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/publiclaw/reporter/document"
)

// Qdrant is the remote vector store backend, speaking gRPC to a Qdrant
// instance. Chunk IDs are mapped to deterministic UUIDs on the way in and
// recovered from the payload on the way out.
type Qdrant struct {
	client *qdrant.Client
}

// NewQdrant connects to a Qdrant instance. The API key may be empty for
// unauthenticated local instances.
func NewQdrant(host string, port int, apiKey string) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: apiKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return &Qdrant{client: client}, nil
}

// Close closes the gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}

// EnsureCollection creates the collection with cosine distance if absent.
// An existing collection with a different vector size is fatal.
func (q *Qdrant) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		info, err := q.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("inspecting collection %s: %w", name, err)
		}
		if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			if got := int(params.GetSize()); got != dim {
				return fmt.Errorf("%w: collection %s has dim %d, want %d",
					ErrDimensionMismatch, name, got, dim)
			}
		}
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a chunk ID is already stored. An absent collection
// reports false so duplicate detection can run before the first ingest.
func (q *Qdrant) Exists(ctx context.Context, collection, chunkID string) (bool, error) {
	ok, err := q.client.CollectionExists(ctx, collection)
	if err != nil || !ok {
		return false, err
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(document.PointID(chunkID))},
	})
	if err != nil {
		return false, fmt.Errorf("checking chunk %s: %w", chunkID, err)
	}
	return len(points) > 0, nil
}

// upsertBatchSize bounds a single Upsert call; Qdrant handles larger
// batches but smaller ones keep failure blast radius per batch.
const upsertBatchSize = 100

// BatchUpsert writes points under their deterministic UUIDs. Re-upserting
// the same points overwrites in place, so the operation is idempotent.
// Written counts points in successful batches; Qdrant does not report
// per-point overwrite, so Skipped stays zero here.
func (q *Qdrant) BatchUpsert(ctx context.Context, collection string, points []Point, onProgress ProgressFunc) (UpsertResult, error) {
	var res UpsertResult
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewID(document.PointID(p.ChunkID)),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(p.Payload),
			})
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         batch,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			res.Errors = append(res.Errors,
				fmt.Sprintf("batch %d-%d: %v", start, end-1, err))
		} else {
			res.Written += end - start
		}
		if onProgress != nil {
			onProgress(end, len(points))
		}
	}
	return res, nil
}

// SemanticSearch runs a filtered similarity query. Qdrant cosine scores are
// already similarities, so they pass through unchanged.
func (q *Qdrant) SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]Hit, error) {
	ok, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}

	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         qdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, p := range scored {
		payload := decodePayload(p.GetPayload())
		hits = append(hits, Hit{
			ChunkID: chunkIDFromPayload(payload, p.GetId()),
			Score:   float64(p.GetScore()),
			Payload: payload,
		})
	}
	return hits, nil
}

// GetByID fetches a single chunk by its deterministic UUID.
func (q *Qdrant) GetByID(ctx context.Context, collection, chunkID string) (*Hit, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(document.PointID(chunkID))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching chunk %s: %w", chunkID, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
	}
	payload := decodePayload(points[0].GetPayload())
	return &Hit{ChunkID: chunkID, Score: 1.0, Payload: payload}, nil
}

// Sample returns up to limit stored payloads via the scroll API.
func (q *Qdrant) Sample(ctx context.Context, collection string, limit int) ([]Hit, error) {
	ok, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collection)
	}

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		payload := decodePayload(p.GetPayload())
		hits = append(hits, Hit{
			ChunkID: chunkIDFromPayload(payload, p.GetId()),
			Payload: payload,
		})
	}
	return hits, nil
}

// ListCollections returns every collection with its point count and vector
// configuration.
func (q *Qdrant) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	infos := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		ci := CollectionInfo{Name: name, Metric: "cosine"}
		info, err := q.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspecting collection %s: %w", name, err)
		}
		ci.Count = int64(info.GetPointsCount())
		if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			ci.Dim = int(params.GetSize())
			ci.Metric = params.GetDistance().String()
		}
		infos = append(infos, ci)
	}
	return infos, nil
}

// DeleteCollection removes a collection and all of its points.
func (q *Qdrant) DeleteCollection(ctx context.Context, name string) error {
	ok, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: collection %s", ErrNotFound, name)
	}
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// qdrantFilter translates the filter AST to Qdrant must-conditions.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f.Empty() {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f.conds))
	for _, c := range f.conds {
		switch c := c.(type) {
		case eqCond:
			must = append(must, qdrant.NewMatch(c.field, c.value))
		case inCond:
			must = append(must, qdrant.NewMatchKeywords(c.field, c.values...))
		case dateRangeCond:
			rng := &qdrant.DatetimeRange{}
			if t, err := time.Parse("2006-01-02", c.gte); err == nil {
				rng.Gte = timestamppb.New(t)
			}
			if t, err := time.Parse("2006-01-02", c.lte); err == nil {
				// Inclusive upper bound: extend to the end of the day.
				rng.Lte = timestamppb.New(t.Add(24*time.Hour - time.Second))
			}
			must = append(must, qdrant.NewDatetimeRange(c.field, rng))
		}
	}
	return &qdrant.Filter{Must: must}
}

// decodePayload converts a Qdrant value map back to plain Go values.
func decodePayload(in map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, decodeValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return decodePayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}

// chunkIDFromPayload recovers the original chunk ID; search results carry
// it in the payload, with the point UUID as a fallback.
func chunkIDFromPayload(payload map[string]any, id *qdrant.PointId) string {
	if cid, ok := payload["chunk_id"].(string); ok && cid != "" {
		return cid
	}
	return id.GetUuid()
}
