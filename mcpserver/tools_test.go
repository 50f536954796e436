package mcpserver

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publiclaw/reporter"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/vectorstore"
)

// memStore serves canned hits and records the filters it was searched with.
type memStore struct {
	hits       map[string][]vectorstore.Hit
	points     map[string]vectorstore.Hit
	lastFilter *vectorstore.Filter
	searchErr  error
}

func (s *memStore) EnsureCollection(ctx context.Context, name string, dim int) error { return nil }

func (s *memStore) Exists(ctx context.Context, collection, chunkID string) (bool, error) {
	return false, nil
}

func (s *memStore) BatchUpsert(ctx context.Context, collection string, points []vectorstore.Point, onProgress vectorstore.ProgressFunc) (vectorstore.UpsertResult, error) {
	return vectorstore.UpsertResult{}, nil
}

func (s *memStore) SemanticSearch(ctx context.Context, collection string, vector []float32, limit int, filter *vectorstore.Filter) ([]vectorstore.Hit, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.lastFilter = filter
	hits, ok := s.hits[collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", vectorstore.ErrNotFound, collection)
	}
	return hits, nil
}

func (s *memStore) GetByID(ctx context.Context, collection, chunkID string) (*vectorstore.Hit, error) {
	if hit, ok := s.points[chunkID]; ok {
		return &hit, nil
	}
	return nil, vectorstore.ErrNotFound
}

func (s *memStore) Sample(ctx context.Context, collection string, limit int) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (s *memStore) ListCollections(ctx context.Context) ([]vectorstore.CollectionInfo, error) {
	return []vectorstore.CollectionInfo{
		{Name: document.CollectionOpinions, Count: 1200, Dim: 1536, Metric: "cosine"},
	}, nil
}

func (s *memStore) DeleteCollection(ctx context.Context, name string) error { return nil }

func (s *memStore) Close() error { return nil }

type memEmbedder struct{}

func (memEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (memEmbedder) Dimension() int { return 4 }

type memFetcher struct {
	docs map[string]*document.Document
}

func (f *memFetcher) ListIDs(ctx context.Context, start, end string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

func (f *memFetcher) Fetch(ctx context.Context, id string) (*document.Document, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("document %s not found", id)
}

func newTestServer(t *testing.T, store *memStore, opts ...reporter.Option) *Server {
	t.Helper()
	cfg := reporter.DefaultConfig()
	base := []reporter.Option{
		reporter.WithVectorStore(store),
		reporter.WithEmbedder(memEmbedder{}),
		reporter.WithLogger(slog.New(slog.DiscardHandler)),
	}
	app, err := reporter.New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return New(app, slog.New(slog.DiscardHandler))
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestSearchDocumentsRejectsUnknownType(t *testing.T) {
	s := newTestServer(t, &memStore{})
	_, _, err := s.searchDocuments(context.Background(), nil, searchDocumentsInput{
		Query:         "standing",
		DocumentTypes: []string{"patents"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid document_types")
}

func TestSearchOpinionsRejectsUnknownOpinionType(t *testing.T) {
	s := newTestServer(t, &memStore{})
	_, _, err := s.searchOpinions(context.Background(), nil, searchOpinionsInput{
		Query:       "standing",
		OpinionType: "plurality",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid opinion_type")
}

func TestSearchOpinionsBuildsFilter(t *testing.T) {
	store := &memStore{hits: map[string][]vectorstore.Hit{
		document.CollectionOpinions: {opinionHit(t, 0.8, "some text").Hit},
	}}
	s := newTestServer(t, store)

	res, _, err := s.searchOpinions(context.Background(), nil, searchOpinionsInput{
		Query:       "free speech",
		OpinionType: "majority",
		Justice:     "Kagan",
		DateFrom:    "2024-01-01",
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.NotNil(t, store.lastFilter)
	assert.False(t, store.lastFilter.Empty())
	assert.Contains(t, resultText(t, res), "Moody v. NetChoice")
}

func TestSearchOrdersEmptyFiltersStayEmpty(t *testing.T) {
	store := &memStore{hits: map[string][]vectorstore.Hit{
		document.CollectionOrders: {},
	}}
	s := newTestServer(t, store)

	res, _, err := s.searchOrders(context.Background(), nil, searchOrdersInput{Query: "tariffs"})
	require.NoError(t, err)
	assert.True(t, store.lastFilter.Empty())
	assert.Contains(t, resultText(t, res), "No results found for query: 'tariffs'")
}

func TestSearchUpstreamFailureIsToolError(t *testing.T) {
	store := &memStore{searchErr: fmt.Errorf("connection refused")}
	s := newTestServer(t, store)

	res, _, err := s.searchDocuments(context.Background(), nil, searchDocumentsInput{Query: "anything"})
	require.NoError(t, err, "upstream failures must not kill the server")
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "search failed")
}

func TestGetDocumentByID(t *testing.T) {
	hit := opinionHit(t, 1, "The judgment is affirmed.")
	store := &memStore{points: map[string]vectorstore.Hit{"9973155_0003": hit.Hit}}
	s := newTestServer(t, store)

	res, _, err := s.getDocument(context.Background(), nil, getDocumentInput{
		DocumentID: "9973155_0003",
		Collection: document.CollectionOpinions,
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "The judgment is affirmed.")
}

func TestGetDocumentMissingIsToolError(t *testing.T) {
	s := newTestServer(t, &memStore{})
	res, _, err := s.getDocument(context.Background(), nil, getDocumentInput{
		DocumentID: "nope_0000",
		Collection: document.CollectionOpinions,
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "no chunk")
}

func TestGetDocumentFullFetchesLive(t *testing.T) {
	hit := opinionHit(t, 1, "chunk text")
	store := &memStore{points: map[string]vectorstore.Hit{"9973155_0003": hit.Hit}}
	fetcher := &memFetcher{docs: map[string]*document.Document{
		"9973155": {
			Title: "Moody v. NetChoice, LLC",
			Text:  "Full opinion text, much longer than any chunk.",
			Type:  document.TypeOpinion,
		},
	}}
	s := newTestServer(t, store, reporter.WithFetcher(document.TypeOpinion, fetcher))

	res, _, err := s.getDocument(context.Background(), nil, getDocumentInput{
		DocumentID:   "9973155_0003",
		Collection:   document.CollectionOpinions,
		FullDocument: true,
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Full opinion text, much longer than any chunk.")
}

func TestListCollections(t *testing.T) {
	s := newTestServer(t, &memStore{})
	res, _, err := s.listCollections(context.Background(), nil, listCollectionsInput{})
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, document.CollectionOpinions)
	assert.Contains(t, text, "Points: 1200")
}

func TestReadOrderResource(t *testing.T) {
	fetcher := &memFetcher{docs: map[string]*document.Document{
		"2024-02806": {
			Title: "Safe, Secure, and Trustworthy Artificial Intelligence",
			Text:  "By the authority vested in me as President, it is hereby ordered.",
			Type:  document.TypeOrder,
			Meta:  document.OrderMeta{ExecutiveOrderNumber: "14110"},
		},
	}}
	s := newTestServer(t, &memStore{}, reporter.WithFetcher(document.TypeOrder, fetcher))

	handler := s.readResource(document.TypeOrder, "order://")
	res, err := handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "order://2024-02806"},
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "text/plain", res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, "Executive Order 14110")
	assert.Contains(t, res.Contents[0].Text, "hereby ordered")
}

func TestReadResourceMalformedURI(t *testing.T) {
	s := newTestServer(t, &memStore{})
	handler := s.readResource(document.TypeOpinion, "opinion://")
	_, err := handler(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "opinion://"},
	})
	assert.Error(t, err)
}
