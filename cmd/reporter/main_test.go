package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publiclaw/reporter"
	"github.com/publiclaw/reporter/pipeline"
)

func testAppContext(t *testing.T) *appContext {
	t.Helper()
	cfg := reporter.DefaultConfig()
	cfg.OpenAIAPIKey = "test-key"
	cfg.ProgressDir = t.TempDir()
	return &appContext{
		ctx:    context.Background(),
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
}

func TestRunIngestAllFailedStillSucceeds(t *testing.T) {
	a := testAppContext(t)
	flags := ingestFlags{
		StartDate:    "2025-01-01",
		EndDate:      "2025-01-31",
		VectorDBPath: filepath.Join(t.TempDir(), "vec.db"),
	}

	err := runIngest(a, flags, 25, func(ctx context.Context, app *reporter.Application, opts reporter.IngestOptions) (*reporter.IngestResult, error) {
		return &reporter.IngestResult{Summary: &pipeline.Summary{
			Discovered: 3,
			Failed:     3,
			Failures: []pipeline.Failure{
				{DocumentID: "a", Error: "fetch: boom"},
				{DocumentID: "b", Error: "fetch: boom"},
				{DocumentID: "c", Error: "fetch: boom"},
			},
		}}, nil
	})
	require.NoError(t, err, "per-document failures never fail the command")
}

func TestRunIngestPipelineErrorPropagates(t *testing.T) {
	a := testAppContext(t)
	flags := ingestFlags{
		StartDate:    "2025-01-01",
		EndDate:      "2025-01-31",
		VectorDBPath: filepath.Join(t.TempDir(), "vec.db"),
	}

	wantErr := errors.New("listing documents: connection refused")
	err := runIngest(a, flags, 25, func(ctx context.Context, app *reporter.Application, opts reporter.IngestOptions) (*reporter.IngestResult, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestExitCodes(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, exitOK, exitCode(ctx, nil))
	assert.Equal(t, exitConfigError, exitCode(ctx, fmt.Errorf("%w: OPENAI_API_KEY is required", reporter.ErrConfig)))
	assert.Equal(t, exitUserError, exitCode(ctx, fmt.Errorf("%w: bad date", reporter.ErrInvalidInput)))
	assert.Equal(t, exitRuntime, exitCode(ctx, errors.New("upsert exploded")))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, exitInterrupted, exitCode(canceled, errors.New("context canceled")))
}
