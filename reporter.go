// Package reporter turns US government documents into a searchable vector
// database. It fetches Supreme Court opinions from CourtListener and
// Executive Orders from the Federal Register, chunks them along their legal
// structure, enriches them with LLM-extracted metadata, embeds them, and
// serves semantic search over the result through an MCP server and a CLI.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/publiclaw/reporter/chunker"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/embed"
	"github.com/publiclaw/reporter/enrich"
	"github.com/publiclaw/reporter/fetch"
	"github.com/publiclaw/reporter/pipeline"
	"github.com/publiclaw/reporter/progress"
	"github.com/publiclaw/reporter/vectorstore"
)

// Version is reported by the CLI and the MCP server handshake.
const Version = "0.3.0"

// Progress database filenames, one per document type, under ProgressDir.
const (
	opinionProgressDB = "scotus_ingestion.db"
	orderProgressDB   = "executive_orders_ingestion.db"
)

// SearchRequest is one semantic query against one or more collections.
type SearchRequest struct {
	Query       string
	Collections []string // empty means every known collection
	Limit       int      // clamped to [1, MaxSearchLimit]; 0 means the default
	Filter      *vectorstore.Filter
}

// SearchHit is one result with the collection it came from.
type SearchHit struct {
	Collection string
	vectorstore.Hit
}

// IngestOptions configures one ingestion run over a publication-date range.
type IngestOptions struct {
	StartDate  string // YYYY-MM-DD, inclusive
	EndDate    string // YYYY-MM-DD, inclusive
	BatchSize  int    // 0 means the pipeline default
	DryRun     bool   // list IDs only, write nothing
	ProgressDB string // overrides the per-type default path
}

// IngestResult is the outcome of one ingestion run. DryRunIDs is populated
// only for dry runs, where Summary counts discovery alone.
type IngestResult struct {
	Summary   *pipeline.Summary
	DryRunIDs []string
}

// ProgressStore is what an ingestion run needs from the progress database.
type ProgressStore interface {
	pipeline.Progress
	io.Closer
}

// ProgressOpener opens (creating if needed) the progress store at path.
type ProgressOpener func(path string) (ProgressStore, error)

// Application wires fetchers, chunker, enricher, embedder, and the vector
// store behind the operations the MCP server and the CLI share. Components
// that need credentials are only constructed when the credential is
// present; operations that touch a missing component fail with ErrConfig.
type Application struct {
	cfg      Config
	logger   *slog.Logger
	store    vectorstore.Store
	embedder embed.Client
	enricher enrich.Enricher
	fetchers map[document.Type]fetch.Fetcher
	chunks   *chunker.Chunker

	openProgress ProgressOpener
}

// Option overrides one Application component, for tests and embedding.
type Option func(*Application)

// WithVectorStore replaces the vector store backend.
func WithVectorStore(s vectorstore.Store) Option {
	return func(a *Application) { a.store = s }
}

// WithEmbedder replaces the embedding client.
func WithEmbedder(e embed.Client) Option {
	return func(a *Application) { a.embedder = e }
}

// WithEnricher replaces the enrichment client.
func WithEnricher(e enrich.Enricher) Option {
	return func(a *Application) { a.enricher = e }
}

// WithFetcher replaces the fetcher for one document type.
func WithFetcher(t document.Type, f fetch.Fetcher) Option {
	return func(a *Application) {
		if a.fetchers == nil {
			a.fetchers = make(map[document.Type]fetch.Fetcher)
		}
		a.fetchers[t] = f
	}
}

// WithLogger replaces the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// WithProgressOpener replaces how ingestion runs open their progress store.
func WithProgressOpener(open ProgressOpener) Option {
	return func(a *Application) { a.openProgress = open }
}

// New builds an Application from configuration, wiring production
// components for everything an Option did not replace. The vector store
// backend is Qdrant when QdrantHost is set, otherwise an embedded database
// under QdrantDBPath.
func New(cfg Config, opts ...Option) (*Application, error) {
	a := &Application{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}

	if a.store == nil {
		var err error
		if cfg.QdrantHost != "" {
			a.store, err = vectorstore.NewQdrant(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey)
		} else {
			a.store, err = vectorstore.OpenLocal(cfg.QdrantDBPath)
		}
		if err != nil {
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
	}

	if a.embedder == nil && cfg.OpenAIAPIKey != "" {
		a.embedder = embed.NewOpenAI(cfg.OpenAIAPIKey,
			embed.WithModel(cfg.EmbeddingModel, cfg.EmbeddingDim),
			embed.WithBatchSize(cfg.EmbedBatchSize),
			embed.WithLogger(a.logger))
	}
	if a.enricher == nil && cfg.OpenAIAPIKey != "" {
		a.enricher = enrich.NewOpenAI(cfg.OpenAIAPIKey,
			enrich.WithModel(cfg.EnrichmentModel),
			enrich.WithLogger(a.logger))
	}

	if a.fetchers == nil {
		a.fetchers = make(map[document.Type]fetch.Fetcher)
	}
	if _, ok := a.fetchers[document.TypeOrder]; !ok {
		a.fetchers[document.TypeOrder] = fetch.NewFederalRegister(
			fetch.WithFederalRegisterLogger(a.logger))
	}
	if _, ok := a.fetchers[document.TypeOpinion]; !ok && cfg.CourtListenerAPIToken != "" {
		a.fetchers[document.TypeOpinion] = fetch.NewCourtListener(cfg.CourtListenerAPIToken,
			fetch.WithCourtListenerLogger(a.logger))
	}

	if a.chunks == nil {
		ch, err := chunker.New(cfg.OpinionChunking, cfg.OrderChunking, chunker.TokenCounter())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		a.chunks = ch
	}

	if a.openProgress == nil {
		a.openProgress = func(path string) (ProgressStore, error) {
			return progress.Open(path,
				progress.WithStaleClaim(cfg.StaleClaim),
				progress.WithMaxAttempts(cfg.MaxAttempts))
		}
	}

	return a, nil
}

// Config returns the configuration the Application was built with.
func (a *Application) Config() Config {
	return a.cfg
}

// Close releases the vector store.
func (a *Application) Close() error {
	return a.store.Close()
}

// Search embeds the query once and runs it against every requested
// collection, merging hits by score descending. A collection that does not
// exist yet contributes zero hits rather than failing the whole search.
func (a *Application) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if a.embedder == nil {
		return nil, a.cfg.RequireOpenAI()
	}

	limit := req.Limit
	if limit <= 0 {
		limit = a.cfg.DefaultSearchLimit
	}
	if limit > a.cfg.MaxSearchLimit {
		limit = a.cfg.MaxSearchLimit
	}

	collections := req.Collections
	if len(collections) == 0 {
		collections = []string{document.CollectionOpinions, document.CollectionOrders}
	}

	vectors, err := a.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 || embed.IsZero(vectors[0]) {
		return nil, errors.New("embedding query: no vector returned")
	}

	var merged []SearchHit
	for _, coll := range collections {
		hits, err := a.store.SemanticSearch(ctx, coll, vectors[0], limit, req.Filter)
		if errors.Is(err, vectorstore.ErrNotFound) {
			a.logger.Debug("search: collection absent", "collection", coll)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", coll, err)
		}
		for _, h := range hits {
			merged = append(merged, SearchHit{Collection: coll, Hit: h})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// GetChunk returns one stored chunk payload by its ID.
func (a *Application) GetChunk(ctx context.Context, collection, chunkID string) (*vectorstore.Hit, error) {
	return a.store.GetByID(ctx, collection, chunkID)
}

// Sample returns up to limit stored payloads from a collection.
func (a *Application) Sample(ctx context.Context, collection string, limit int) ([]vectorstore.Hit, error) {
	return a.store.Sample(ctx, collection, limit)
}

// ListCollections returns the vector store inventory.
func (a *Application) ListCollections(ctx context.Context) ([]vectorstore.CollectionInfo, error) {
	return a.store.ListCollections(ctx)
}

// DeleteCollection removes a collection and all of its points.
func (a *Application) DeleteCollection(ctx context.Context, name string) error {
	return a.store.DeleteCollection(ctx, name)
}

// FetchFull retrieves the complete document live from its source API,
// bypassing the vector store.
func (a *Application) FetchFull(ctx context.Context, t document.Type, id string) (*document.Document, error) {
	f, err := a.fetcher(t)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, id)
}

// IngestOpinions runs the pipeline over Supreme Court opinions published in
// [StartDate, EndDate].
func (a *Application) IngestOpinions(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	return a.ingest(ctx, document.TypeOpinion, opts)
}

// IngestOrders runs the pipeline over Executive Orders signed in
// [StartDate, EndDate].
func (a *Application) IngestOrders(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	return a.ingest(ctx, document.TypeOrder, opts)
}

func (a *Application) ingest(ctx context.Context, t document.Type, opts IngestOptions) (*IngestResult, error) {
	if err := validateDateRange(opts.StartDate, opts.EndDate); err != nil {
		return nil, err
	}
	fetcher, err := a.fetcher(t)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return a.dryRun(ctx, fetcher, opts)
	}

	if a.embedder == nil || a.enricher == nil {
		return nil, a.cfg.RequireOpenAI()
	}

	prog, err := a.openProgress(a.progressPath(t, opts.ProgressDB))
	if err != nil {
		return nil, fmt.Errorf("opening progress store: %w", err)
	}
	defer prog.Close()

	p, err := pipeline.New(t, fetcher, a.chunks, a.enricher, a.embedder, a.store, prog,
		pipeline.Config{
			Workers:       a.cfg.Workers,
			BatchSize:     opts.BatchSize,
			FetchTimeout:  a.cfg.FetchTimeout,
			EnrichTimeout: a.cfg.EnrichTimeout,
			EmbedTimeout:  a.cfg.EmbedTimeout,
			UpsertTimeout: a.cfg.UpsertTimeout,
		}, a.logger)
	if err != nil {
		return nil, err
	}

	args := fmt.Sprintf("type=%s start=%s end=%s", t, opts.StartDate, opts.EndDate)
	summary, err := p.Run(ctx, opts.StartDate, opts.EndDate, args)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Summary: summary}, nil
}

// dryRun walks discovery without claiming, processing, or writing anything.
func (a *Application) dryRun(ctx context.Context, fetcher fetch.Fetcher, opts IngestOptions) (*IngestResult, error) {
	var ids []string
	for id, err := range fetcher.ListIDs(ctx, opts.StartDate, opts.EndDate) {
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		ids = append(ids, id)
	}
	return &IngestResult{
		Summary:   &pipeline.Summary{Discovered: len(ids)},
		DryRunIDs: ids,
	}, nil
}

func (a *Application) fetcher(t document.Type) (fetch.Fetcher, error) {
	if f, ok := a.fetchers[t]; ok {
		return f, nil
	}
	if t == document.TypeOpinion {
		return nil, a.cfg.RequireCourtListener()
	}
	return nil, fmt.Errorf("%w: no fetcher for document type %q", ErrConfig, t)
}

func (a *Application) progressPath(t document.Type, override string) string {
	if override != "" {
		return override
	}
	name := orderProgressDB
	if t == document.TypeOpinion {
		name = opinionProgressDB
	}
	return filepath.Join(a.cfg.ProgressDir, name)
}

func validateDateRange(start, end string) error {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return fmt.Errorf("%w: start date %q is not YYYY-MM-DD", ErrInvalidInput, start)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return fmt.Errorf("%w: end date %q is not YYYY-MM-DD", ErrInvalidInput, end)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidInput, end, start)
	}
	return nil
}
