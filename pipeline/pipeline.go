// Package pipeline drives document ingestion: discover IDs from an
// upstream source, then fetch, chunk, enrich, embed, and upsert each
// document with a bounded worker pool. Every document's fate is recorded in
// the progress store, so an interrupted run resumes where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/publiclaw/reporter/chunker"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/embed"
	"github.com/publiclaw/reporter/enrich"
	"github.com/publiclaw/reporter/fetch"
	"github.com/publiclaw/reporter/progress"
	"github.com/publiclaw/reporter/vectorstore"
)

// Chunker splits document text into token-budgeted chunks; implemented by
// chunker.Chunker.
type Chunker interface {
	ChunkOpinion(text string) []chunker.Chunk
	ChunkOrder(text string) []chunker.Chunk
}

// Progress is the slice of the progress store the pipeline depends on;
// implemented by *progress.Store.
type Progress interface {
	Claim(ctx context.Context, docID string) (bool, error)
	Complete(ctx context.Context, docID string, duration time.Duration) error
	Fail(ctx context.Context, docID, message string) error
	IsCompleted(ctx context.Context, docID string) (bool, error)
	ResetStale(ctx context.Context) (int, error)
	StartRun(ctx context.Context, args string) (int64, error)
	EndRun(ctx context.Context, runID int64, status string) error
}

// Config bounds the pipeline's concurrency and per-stage deadlines.
type Config struct {
	Workers       int
	BatchSize     int
	FetchTimeout  time.Duration
	EnrichTimeout time.Duration
	EmbedTimeout  time.Duration
	UpsertTimeout time.Duration
}

// Defaults for zero Config fields.
const (
	defaultWorkers       = 4
	defaultBatchSize     = 50
	defaultFetchTimeout  = 30 * time.Second
	defaultEnrichTimeout = 60 * time.Second
	defaultEmbedTimeout  = 60 * time.Second
	defaultUpsertTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.EnrichTimeout <= 0 {
		c.EnrichTimeout = defaultEnrichTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = defaultEmbedTimeout
	}
	if c.UpsertTimeout <= 0 {
		c.UpsertTimeout = defaultUpsertTimeout
	}
	return c
}

// Pipeline ingests one document type end to end.
type Pipeline struct {
	docType  document.Type
	fetcher  fetch.Fetcher
	chunks   Chunker
	enricher enrich.Enricher
	embedder embed.Client
	store    vectorstore.Store
	progress Progress
	cfg      Config
	logger   *slog.Logger
}

// New wires a pipeline from its components.
func New(
	docType document.Type,
	fetcher fetch.Fetcher,
	chunks Chunker,
	enricher enrich.Enricher,
	embedder embed.Client,
	store vectorstore.Store,
	prog Progress,
	cfg Config,
	logger *slog.Logger,
) (*Pipeline, error) {
	if docType.Collection() == "" {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	if fetcher == nil || chunks == nil || enricher == nil || embedder == nil ||
		store == nil || prog == nil {
		return nil, errors.New("pipeline: all components are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		docType:  docType,
		fetcher:  fetcher,
		chunks:   chunks,
		enricher: enricher,
		embedder: embedder,
		store:    store,
		progress: prog,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}, nil
}

// Summary is the outcome of one ingestion run. The counts always satisfy
// Completed + Skipped + Failed == Discovered.
type Summary struct {
	Discovered int
	Completed  int
	Skipped    int
	Failed     int
	Failures   []Failure
	Duration   time.Duration
}

// Failure pairs a failed document ID with its stage-tagged error.
type Failure struct {
	DocumentID string
	Error      string
}

// maxReportedFailures bounds the failure list carried in the summary.
const maxReportedFailures = 10

// SuccessRate returns completed / (discovered - skipped), in [0, 1].
func (s *Summary) SuccessRate() float64 {
	attempted := s.Discovered - s.Skipped
	if attempted <= 0 {
		return 1.0
	}
	return float64(s.Completed) / float64(attempted)
}

// Throughput returns processed documents per minute.
func (s *Summary) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Completed+s.Failed) / s.Duration.Minutes()
}

// Run ingests every document published in [start, end]. IDs stream from
// the fetcher oldest first and are processed in batches; within a batch a
// bounded worker pool runs documents concurrently. Only pipeline-level
// problems (discovery failure, progress store breakage) return an error;
// per-document failures are recorded and counted.
func (p *Pipeline) Run(ctx context.Context, start, end, args string) (*Summary, error) {
	began := time.Now()

	runID, err := p.progress.StartRun(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	if n, err := p.progress.ResetStale(ctx); err != nil {
		p.endRun(runID, progress.RunFailed)
		return nil, fmt.Errorf("resetting stale claims: %w", err)
	} else if n > 0 {
		p.logger.Info("pipeline: reset stale claims", "count", n)
	}
	if err := p.store.EnsureCollection(ctx, p.docType.Collection(), p.embedder.Dimension()); err != nil {
		p.endRun(runID, progress.RunFailed)
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	summary := &Summary{}
	mon := newMonitor(p.logger)

	batch := make([]string, 0, p.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		p.processBatch(ctx, batch, summary, mon)
		batch = batch[:0]
		return ctx.Err()
	}

	for id, err := range p.fetcher.ListIDs(ctx, start, end) {
		if err != nil {
			p.endRun(runID, progress.RunFailed)
			return summary, fmt.Errorf("listing documents: %w", err)
		}
		summary.Discovered++
		batch = append(batch, id)
		if len(batch) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				p.endRun(runID, progress.RunInterrupted)
				summary.Duration = time.Since(began)
				return summary, err
			}
		}
	}
	if err := flush(); err != nil {
		p.endRun(runID, progress.RunInterrupted)
		summary.Duration = time.Since(began)
		return summary, err
	}

	summary.Duration = time.Since(began)
	p.endRun(runID, progress.RunCompleted)
	p.logSummary(summary)
	return summary, nil
}

func (p *Pipeline) endRun(runID int64, status string) {
	// Run bookkeeping must survive a canceled parent context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.progress.EndRun(ctx, runID, status); err != nil {
		p.logger.Warn("pipeline: closing run record failed", "run_id", runID, "error", err)
	}
}

// processBatch runs one batch of document IDs through the worker pool.
// Chunks for at most one batch are in memory at a time.
func (p *Pipeline) processBatch(ctx context.Context, ids []string, summary *Summary, mon *monitor) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	results := make([]docResult, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			results[i] = p.processDocument(gctx, id)
			mon.observe(results[i], summary.Discovered)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are per-document

	for _, r := range results {
		switch r.status {
		case docCompleted:
			summary.Completed++
		case docSkipped:
			summary.Skipped++
		case docFailed:
			summary.Failed++
			if len(summary.Failures) < maxReportedFailures {
				summary.Failures = append(summary.Failures, Failure{
					DocumentID: r.id,
					Error:      r.err,
				})
			}
		}
	}
}

type docStatus int

const (
	docCompleted docStatus = iota
	docSkipped
	docFailed
)

type docResult struct {
	id       string
	status   docStatus
	err      string
	duration time.Duration
}

// processDocument runs one document through the stage machine. Failures
// are recorded in the progress store with a stage tag; they never abort
// the run.
func (p *Pipeline) processDocument(ctx context.Context, id string) docResult {
	began := time.Now()

	fail := func(stage string, err error) docResult {
		msg := fmt.Sprintf("%s: %v", stage, err)
		p.logger.Warn("pipeline: document failed",
			"document_id", id, "stage", stage, "error", err)
		if ferr := p.progress.Fail(ctx, id, msg); ferr != nil {
			p.logger.Error("pipeline: recording failure failed",
				"document_id", id, "error", ferr)
		}
		return docResult{id: id, status: docFailed, err: msg, duration: time.Since(began)}
	}

	skip, err := p.alreadyIngested(ctx, id)
	if err != nil {
		return fail("duplicate-check", err)
	}
	if skip {
		return docResult{id: id, status: docSkipped, duration: time.Since(began)}
	}

	claimed, err := p.progress.Claim(ctx, id)
	if err != nil {
		return fail("claim", err)
	}
	if !claimed {
		return docResult{id: id, status: docSkipped, duration: time.Since(began)}
	}

	doc, err := withTimeout(ctx, p.cfg.FetchTimeout, func(sctx context.Context) (*document.Document, error) {
		return p.fetcher.Fetch(sctx, id)
	})
	if err != nil {
		return fail("fetch", err)
	}

	chunks := p.chunkDocument(doc)
	if len(chunks) == 0 {
		// Nothing to store; the document still completes.
		if err := p.progress.Complete(ctx, id, time.Since(began)); err != nil {
			return fail("complete", err)
		}
		p.logger.Info("pipeline: empty document completed", "document_id", id)
		return docResult{id: id, status: docCompleted, duration: time.Since(began)}
	}

	enrichment, err := withTimeout(ctx, p.cfg.EnrichTimeout, func(sctx context.Context) (*document.Enrichment, error) {
		return p.enricher.Enrich(sctx, doc)
	})
	if err != nil {
		return fail("enrich", err)
	}

	// Chunk IDs are fixed by position before embedding.
	points, texts, err := buildPoints(doc, enrichment, chunks)
	if err != nil {
		return fail("payload", err)
	}

	vectors, err := withTimeout(ctx, p.cfg.EmbedTimeout, func(sctx context.Context) ([][]float32, error) {
		return p.embedder.Embed(sctx, texts)
	})
	if err != nil {
		return fail("embed", err)
	}
	if len(vectors) != len(points) {
		return fail("embed", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(points)))
	}
	var zeroed int
	for i := range points {
		if embed.IsZero(vectors[i]) {
			zeroed++
		}
		points[i].Vector = vectors[i]
	}
	if zeroed > 0 {
		return fail("re-embed", fmt.Errorf("%d of %d chunks got zero vectors", zeroed, len(points)))
	}

	res, err := withTimeout(ctx, p.cfg.UpsertTimeout, func(sctx context.Context) (vectorstore.UpsertResult, error) {
		return p.store.BatchUpsert(sctx, p.docType.Collection(), points, nil)
	})
	if err != nil {
		return fail("upsert", err)
	}
	if len(res.Errors) > 0 {
		return fail("upsert", fmt.Errorf("%d of %d points rejected: %s",
			len(res.Errors), len(points), strings.Join(res.Errors, "; ")))
	}

	if err := p.progress.Complete(ctx, id, time.Since(began)); err != nil {
		return fail("complete", err)
	}
	return docResult{id: id, status: docCompleted, duration: time.Since(began)}
}

// alreadyIngested reports whether the document can be skipped: the progress
// store says completed, or its first chunk is already in the vector store.
func (p *Pipeline) alreadyIngested(ctx context.Context, id string) (bool, error) {
	done, err := p.progress.IsCompleted(ctx, id)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}
	return p.store.Exists(ctx, p.docType.Collection(), document.ChunkID(id, 0))
}

func (p *Pipeline) chunkDocument(doc *document.Document) []chunker.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}
	if doc.Type == document.TypeOrder {
		return p.chunks.ChunkOrder(doc.Text)
	}
	return p.chunks.ChunkOpinion(doc.Text)
}

// withTimeout runs one stage under its deadline.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(sctx)
}

func (p *Pipeline) logSummary(s *Summary) {
	p.logger.Info("pipeline: run finished",
		"type", string(p.docType),
		"discovered", s.Discovered,
		"completed", s.Completed,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", s.SuccessRate()*100),
		"docs_per_min", fmt.Sprintf("%.1f", s.Throughput()),
		"duration", s.Duration.Round(time.Second),
	)
	for _, f := range s.Failures {
		p.logger.Warn("pipeline: failed document", "document_id", f.DocumentID, "error", f.Error)
	}
}
