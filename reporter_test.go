package reporter

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/vectorstore"
)

// stubStore serves canned search hits per collection; write operations are
// recorded so ingestion tests can assert on them.
type stubStore struct {
	mu          sync.Mutex
	hits        map[string][]vectorstore.Hit
	points      map[string]map[string]vectorstore.Point
	collections map[string]int
}

func newStubStore() *stubStore {
	return &stubStore{
		hits:        make(map[string][]vectorstore.Hit),
		points:      make(map[string]map[string]vectorstore.Point),
		collections: make(map[string]int),
	}
}

func (s *stubStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if got, ok := s.collections[name]; ok && got != dim {
		return vectorstore.ErrDimensionMismatch
	}
	s.collections[name] = dim
	if s.points[name] == nil {
		s.points[name] = make(map[string]vectorstore.Point)
	}
	return nil
}

func (s *stubStore) Exists(ctx context.Context, collection, chunkID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.points[collection][chunkID]
	return ok, nil
}

func (s *stubStore) BatchUpsert(ctx context.Context, collection string, points []vectorstore.Point, onProgress vectorstore.ProgressFunc) (vectorstore.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res vectorstore.UpsertResult
	for _, p := range points {
		if _, ok := s.points[collection][p.ChunkID]; ok {
			res.Skipped++
		} else {
			s.points[collection][p.ChunkID] = p
			res.Written++
		}
	}
	return res, nil
}

func (s *stubStore) SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, filter *vectorstore.Filter) ([]vectorstore.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits, ok := s.hits[collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", vectorstore.ErrNotFound, collection)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *stubStore) GetByID(ctx context.Context, collection, chunkID string) (*vectorstore.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.points[collection][chunkID]; ok {
		return &vectorstore.Hit{ChunkID: chunkID, Score: 1.0, Payload: p.Payload}, nil
	}
	return nil, vectorstore.ErrNotFound
}

func (s *stubStore) Sample(ctx context.Context, collection string, limit int) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (s *stubStore) ListCollections(ctx context.Context) ([]vectorstore.CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var infos []vectorstore.CollectionInfo
	for name, dim := range s.collections {
		infos = append(infos, vectorstore.CollectionInfo{
			Name: name, Dim: dim, Count: int64(len(s.points[name])), Metric: "cosine",
		})
	}
	return infos, nil
}

func (s *stubStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return vectorstore.ErrNotFound
	}
	delete(s.collections, name)
	delete(s.points, name)
	return nil
}

func (s *stubStore) Close() error { return nil }

type stubEmbedder struct{ dim int }

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int { return e.dim }

type stubEnricher struct{}

func (stubEnricher) Enrich(ctx context.Context, doc *document.Document) (*document.Enrichment, error) {
	return &document.Enrichment{
		DocumentSummary: "Summary of " + doc.Title,
		Topics:          []string{"energy", "environment", "regulation", "agencies", "procedure"},
	}, nil
}

type stubFetcher struct {
	ids  []string
	docs map[string]*document.Document
}

func (f *stubFetcher) ListIDs(ctx context.Context, start, end string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, id := range f.ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, id string) (*document.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	return doc, nil
}

func orderDocument(id string) *document.Document {
	return &document.Document{
		ID:     id,
		Title:  "Promoting Test Coverage",
		Date:   "2024-03-15",
		Type:   document.TypeOrder,
		Source: "Federal Register",
		URL:    "https://www.federalregister.gov/d/" + id,
		Text: "By the authority vested in me as President, it is hereby ordered:\n\n" +
			"Section 1. Policy. It is the policy of the United States to test software.\n\n" +
			"Sec. 2. Implementation. Agencies shall act within 90 days.",
		Meta: document.OrderMeta{
			ExecutiveOrderNumber: "14999",
			President:            "Test President",
			SigningDate:          "2024-03-12",
		},
	}
}

func newTestApp(t *testing.T, store *stubStore, opts ...Option) *Application {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ProgressDir = t.TempDir()
	base := []Option{
		WithVectorStore(store),
		WithEmbedder(&stubEmbedder{dim: 4}),
		WithEnricher(stubEnricher{}),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	app, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return app
}

func TestSearchEmptyQueryIsInvalid(t *testing.T) {
	app := newTestApp(t, newStubStore())
	_, err := app.Search(context.Background(), SearchRequest{Query: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearchWithoutEmbedderNeedsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProgressDir = t.TempDir()
	app, err := New(cfg,
		WithVectorStore(newStubStore()),
		WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	_, err = app.Search(context.Background(), SearchRequest{Query: "standing"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSearchMergesCollectionsByScore(t *testing.T) {
	store := newStubStore()
	store.hits[document.CollectionOpinions] = []vectorstore.Hit{
		{ChunkID: "op-1", Score: 0.91},
		{ChunkID: "op-2", Score: 0.40},
	}
	store.hits[document.CollectionOrders] = []vectorstore.Hit{
		{ChunkID: "eo-1", Score: 0.75},
	}
	app := newTestApp(t, store)

	hits, err := app.Search(context.Background(), SearchRequest{Query: "commerce clause"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "op-1", hits[0].ChunkID)
	assert.Equal(t, "eo-1", hits[1].ChunkID)
	assert.Equal(t, "op-2", hits[2].ChunkID)
	assert.Equal(t, document.CollectionOrders, hits[1].Collection)
}

func TestSearchClampsLimit(t *testing.T) {
	store := newStubStore()
	for i := 0; i < 60; i++ {
		store.hits[document.CollectionOpinions] = append(
			store.hits[document.CollectionOpinions],
			vectorstore.Hit{ChunkID: fmt.Sprintf("op-%d", i), Score: 1 - float64(i)/100})
	}
	store.hits[document.CollectionOrders] = nil
	app := newTestApp(t, store)

	hits, err := app.Search(context.Background(), SearchRequest{Query: "anything", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, hits, app.Config().MaxSearchLimit)
}

func TestSearchSkipsAbsentCollection(t *testing.T) {
	store := newStubStore()
	store.hits[document.CollectionOrders] = []vectorstore.Hit{{ChunkID: "eo-1", Score: 0.5}}
	app := newTestApp(t, store)

	hits, err := app.Search(context.Background(), SearchRequest{Query: "tariffs"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "eo-1", hits[0].ChunkID)
}

func TestIngestRejectsBadDates(t *testing.T) {
	app := newTestApp(t, newStubStore())
	ctx := context.Background()

	_, err := app.IngestOrders(ctx, IngestOptions{StartDate: "03/15/2024", EndDate: "2024-04-01"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = app.IngestOrders(ctx, IngestOptions{StartDate: "2024-04-01", EndDate: "2024-03-01"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIngestOpinionsWithoutTokenIsConfigError(t *testing.T) {
	app := newTestApp(t, newStubStore())
	_, err := app.IngestOpinions(context.Background(), IngestOptions{
		StartDate: "2024-01-01", EndDate: "2024-12-31",
	})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestIngestDryRunListsWithoutWriting(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{ids: []string{"2024-01111", "2024-01112"}}
	app := newTestApp(t, store,
		WithFetcher(document.TypeOrder, fetcher),
		WithProgressOpener(func(path string) (ProgressStore, error) {
			t.Fatal("dry run must not open a progress store")
			return nil, nil
		}))

	res, err := app.IngestOrders(context.Background(), IngestOptions{
		StartDate: "2024-01-01", EndDate: "2024-12-31", DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01111", "2024-01112"}, res.DryRunIDs)
	assert.Equal(t, 2, res.Summary.Discovered)
	assert.Empty(t, store.points[document.CollectionOrders])
}

func TestIngestOrdersEndToEnd(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{
		ids: []string{"2024-01111"},
		docs: map[string]*document.Document{
			"2024-01111": orderDocument("2024-01111"),
		},
	}
	app := newTestApp(t, store, WithFetcher(document.TypeOrder, fetcher))

	res, err := app.IngestOrders(context.Background(), IngestOptions{
		StartDate: "2024-01-01", EndDate: "2024-12-31",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 1, res.Summary.Discovered)
	assert.Equal(t, 1, res.Summary.Completed)
	assert.Zero(t, res.Summary.Failed)
	assert.NotEmpty(t, store.points[document.CollectionOrders])

	// A second run over the same range skips everything.
	res, err = app.IngestOrders(context.Background(), IngestOptions{
		StartDate: "2024-01-01", EndDate: "2024-12-31",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Skipped)
	assert.Zero(t, res.Summary.Completed)
}

func TestFetchFullUsesLiveFetcher(t *testing.T) {
	doc := orderDocument("2024-02222")
	app := newTestApp(t, newStubStore(),
		WithFetcher(document.TypeOrder, &stubFetcher{
			docs: map[string]*document.Document{"2024-02222": doc},
		}))

	got, err := app.FetchFull(context.Background(), document.TypeOrder, "2024-02222")
	require.NoError(t, err)
	assert.Equal(t, "Promoting Test Coverage", got.Title)
	assert.True(t, strings.Contains(got.Text, "Section 1. Policy."))
}

func TestValidateDateRange(t *testing.T) {
	assert.NoError(t, validateDateRange("2024-01-01", "2024-01-01"))
	assert.Error(t, validateDateRange("", "2024-01-01"))
	assert.Error(t, validateDateRange("2024-01-01", "not-a-date"))
}
