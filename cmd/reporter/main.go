// Command reporter ingests US government documents into a vector database
// and serves semantic search over them through an MCP server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/publiclaw/reporter"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/mcpserver"
)

// Exit codes. Per-document ingestion failures are captured in the progress
// store and the printed summary; only a pipeline-level error exits nonzero.
const (
	exitOK          = 0
	exitUserError   = 1
	exitConfigError = 2
	exitRuntime     = 3
	exitInterrupted = 130
)

type cli struct {
	LogLevel string           `help:"Log level: debug, info, warn, or error." default:""`
	Version  kong.VersionFlag `help:"Print the version and exit."`

	Server serverCmd `cmd:"" help:"Serve MCP over stdio."`
	Ingest ingestCmd `cmd:"" help:"Ingest documents for a publication-date range."`
	Delete deleteCmd `cmd:"" help:"Delete vector-store collections."`
	Info   infoCmd   `cmd:"" help:"Inspect the vector store."`
	Query  queryCmd  `cmd:"" help:"Run one semantic search and print the results."`
}

// appContext carries what every command needs: configuration, logger, and
// the signal-aware context.
type appContext struct {
	ctx    context.Context
	cfg    reporter.Config
	logger *slog.Logger
}

// open builds the Application, optionally pointing the embedded vector
// store at a different path.
func (a *appContext) open(vectorDBPath string) (*reporter.Application, error) {
	cfg := a.cfg
	if vectorDBPath != "" {
		cfg.QdrantDBPath = vectorDBPath
		cfg.QdrantHost = "" // an explicit local path always means the embedded store
	}
	return reporter.New(cfg, reporter.WithLogger(a.logger))
}

func main() {
	cfg, err := reporter.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "reporter:", err)
		os.Exit(exitConfigError)
	}

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("reporter"),
		kong.Description("US government document search: Supreme Court opinions and Executive Orders."),
		kong.UsageOnError(),
		kong.Vars{"version": reporter.Version},
	)

	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = kctx.Run(&appContext{ctx: ctx, cfg: cfg, logger: logger})
	os.Exit(exitCode(ctx, err))
}

func exitCode(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return exitInterrupted
	}
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, reporter.ErrConfig):
		slog.Error(err.Error())
		return exitConfigError
	case errors.Is(err, reporter.ErrInvalidInput):
		fmt.Fprintln(os.Stderr, "reporter:", err)
		return exitUserError
	default:
		slog.Error(err.Error())
		return exitRuntime
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverCmd struct {
	RequestTimeout time.Duration `help:"Per-request deadline." default:"0"`
}

func (c *serverCmd) Run(a *appContext) error {
	if err := a.cfg.RequireOpenAI(); err != nil {
		return err
	}
	if c.RequestTimeout > 0 {
		a.cfg.RequestTimeout = c.RequestTimeout
	}

	app, err := a.open("")
	if err != nil {
		return err
	}
	defer app.Close()

	srv := mcpserver.New(app, a.logger)
	if err := srv.Run(a.ctx); err != nil && a.ctx.Err() == nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

// ---------------------------------------------------------------------------
// ingest
// ---------------------------------------------------------------------------

type ingestCmd struct {
	Opinions ingestOpinionsCmd `cmd:"" help:"Ingest US Supreme Court opinions from CourtListener."`
	Orders   ingestOrdersCmd   `cmd:"" help:"Ingest Executive Orders from the Federal Register."`
}

type ingestFlags struct {
	StartDate    string `required:"" help:"Earliest publication date, YYYY-MM-DD."`
	EndDate      string `required:"" help:"Latest publication date, YYYY-MM-DD."`
	DryRun       bool   `help:"List the document IDs that would be processed, write nothing."`
	ProgressDB   string `help:"Progress database path (default under the progress directory)."`
	VectorDBPath string `help:"Embedded vector database path."`
}

type ingestOpinionsCmd struct {
	ingestFlags
	BatchSize int `help:"Documents per batch." default:"50"`
}

type ingestOrdersCmd struct {
	ingestFlags
	BatchSize int `help:"Documents per batch." default:"25"`
}

func (c *ingestOpinionsCmd) Run(a *appContext) error {
	if err := a.cfg.RequireCourtListener(); err != nil {
		return err
	}
	return runIngest(a, c.ingestFlags, c.BatchSize, func(ctx context.Context, app *reporter.Application, opts reporter.IngestOptions) (*reporter.IngestResult, error) {
		return app.IngestOpinions(ctx, opts)
	})
}

func (c *ingestOrdersCmd) Run(a *appContext) error {
	return runIngest(a, c.ingestFlags, c.BatchSize, func(ctx context.Context, app *reporter.Application, opts reporter.IngestOptions) (*reporter.IngestResult, error) {
		return app.IngestOrders(ctx, opts)
	})
}

func runIngest(a *appContext, flags ingestFlags, batchSize int,
	ingest func(context.Context, *reporter.Application, reporter.IngestOptions) (*reporter.IngestResult, error)) error {

	if !flags.DryRun {
		if err := a.cfg.RequireOpenAI(); err != nil {
			return err
		}
	}

	app, err := a.open(flags.VectorDBPath)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := ingest(a.ctx, app, reporter.IngestOptions{
		StartDate:  flags.StartDate,
		EndDate:    flags.EndDate,
		BatchSize:  batchSize,
		DryRun:     flags.DryRun,
		ProgressDB: flags.ProgressDB,
	})
	if err != nil {
		return err
	}

	if flags.DryRun {
		fmt.Printf("Would process %d documents:\n", len(res.DryRunIDs))
		for _, id := range res.DryRunIDs {
			fmt.Println(id)
		}
		return nil
	}

	s := res.Summary
	fmt.Printf("Discovered: %d\nCompleted:  %d\nSkipped:    %d\nFailed:     %d\n",
		s.Discovered, s.Completed, s.Skipped, s.Failed)
	fmt.Printf("Duration:   %s  (%.1f docs/min, %.0f%% success)\n",
		s.Duration.Round(time.Second), s.Throughput(), s.SuccessRate()*100)
	for _, f := range s.Failures {
		fmt.Printf("  failed %s: %s\n", f.DocumentID, f.Error)
	}

	if s.Discovered > 0 && s.Completed == 0 && s.Skipped == 0 {
		a.logger.Warn("every discovered document failed; see the progress database",
			"discovered", s.Discovered)
	}
	return nil
}

// ---------------------------------------------------------------------------
// delete
// ---------------------------------------------------------------------------

type deleteCmd struct {
	Collection string `help:"Collection to delete." xor:"target"`
	All        bool   `help:"Delete every collection." xor:"target"`
	Yes        bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *deleteCmd) Run(a *appContext) error {
	if c.Collection == "" && !c.All {
		return fmt.Errorf("%w: use --collection NAME or --all", reporter.ErrInvalidInput)
	}

	var targets []string
	if c.All {
		targets = []string{document.CollectionOpinions, document.CollectionOrders}
	} else {
		t, err := document.ParseType(c.Collection)
		if err != nil {
			return fmt.Errorf("%w: %v", reporter.ErrInvalidInput, err)
		}
		targets = []string{t.Collection()}
	}

	if !c.Yes && !confirm(fmt.Sprintf("Delete %s? This cannot be undone.", strings.Join(targets, ", "))) {
		fmt.Println("Aborted.")
		return nil
	}

	app, err := a.open("")
	if err != nil {
		return err
	}
	defer app.Close()

	for _, name := range targets {
		if err := app.DeleteCollection(a.ctx, name); err != nil {
			if c.All {
				// Absent collections are fine when sweeping everything.
				a.logger.Warn("delete: skipping collection", "collection", name, "error", err)
				continue
			}
			return err
		}
		fmt.Printf("Deleted %s\n", name)
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// info
// ---------------------------------------------------------------------------

type infoCmd struct {
	Collections infoCollectionsCmd `cmd:"" help:"List collections with point counts."`
	Sample      infoSampleCmd      `cmd:"" help:"Print stored payloads from a collection."`
}

type infoCollectionsCmd struct{}

func (c *infoCollectionsCmd) Run(a *appContext) error {
	app, err := a.open("")
	if err != nil {
		return err
	}
	defer app.Close()

	infos, err := app.ListCollections(a.ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No collections. Run an ingest first.")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-28s %8d points  dim=%d  metric=%s\n", info.Name, info.Count, info.Dim, info.Metric)
	}
	return nil
}

type infoSampleCmd struct {
	Type     string `arg:"" help:"Document type: opinions or orders."`
	Limit    int    `help:"Payloads to print." default:"5"`
	ShowText bool   `help:"Include chunk text."`
}

func (c *infoSampleCmd) Run(a *appContext) error {
	t, err := document.ParseType(c.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", reporter.ErrInvalidInput, err)
	}

	app, err := a.open("")
	if err != nil {
		return err
	}
	defer app.Close()

	hits, err := app.Sample(a.ctx, t.Collection(), c.Limit)
	if err != nil {
		return err
	}
	for i, hit := range hits {
		fmt.Printf("--- %d: %s ---\n", i+1, hit.ChunkID)
		for k, v := range hit.Payload {
			if k == "text" && !c.ShowText {
				continue
			}
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
	fmt.Printf("%d payloads from %s\n", len(hits), t.Collection())
	return nil
}

// ---------------------------------------------------------------------------
// query
// ---------------------------------------------------------------------------

type queryCmd struct {
	Text  string `arg:"" help:"Search query."`
	Limit int    `help:"Maximum results." default:"10"`
}

func (c *queryCmd) Run(a *appContext) error {
	if err := a.cfg.RequireOpenAI(); err != nil {
		return err
	}

	app, err := a.open("")
	if err != nil {
		return err
	}
	defer app.Close()

	hits, err := app.Search(a.ctx, reporter.SearchRequest{Query: c.Text, Limit: c.Limit})
	if err != nil {
		return err
	}
	fmt.Println(mcpserver.FormatResults(c.Text, hits, mcpserver.FormatOptions{
		MaxChunkChars: a.cfg.MaxChunkChars,
		HintMaxHits:   a.cfg.HintMaxHits,
		HintMinScore:  a.cfg.HintMinScore,
	}))
	return nil
}
