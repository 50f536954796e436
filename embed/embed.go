// Package embed turns chunk texts into dense vectors. The OpenAI client
// batches requests, retries transient failures with exponential backoff,
// and degrades a poisoned batch to per-item calls so one bad text cannot
// sink its neighbors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Client generates embeddings for batches of texts. Vectors come back in
// input order, one per text.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const (
	// DefaultModel is the embedding model both collections are built on.
	// Changing it requires re-ingesting: vectors from different models are
	// not comparable.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector size of DefaultModel.
	DefaultDimension = 1536

	// DefaultBatchSize bounds one embeddings request.
	DefaultBatchSize = 100

	maxTries = 5
)

// callFunc issues one embeddings request for up to a batch of texts.
type callFunc func(ctx context.Context, texts []string) ([][]float32, error)

// OpenAI implements Client against the OpenAI embeddings API.
type OpenAI struct {
	call      callFunc
	model     string
	dim       int
	batchSize int
	logger    *slog.Logger
}

// Option configures the OpenAI embedder.
type Option func(*OpenAI)

// WithModel overrides the embedding model.
func WithModel(model string, dim int) Option {
	return func(o *OpenAI) {
		o.model = model
		o.dim = dim
	}
}

// WithBatchSize bounds how many texts one API request carries.
func WithBatchSize(n int) Option {
	return func(o *OpenAI) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *OpenAI) { o.logger = l }
}

// NewOpenAI creates an embedder backed by the OpenAI API.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	o := &OpenAI{
		model:     DefaultModel,
		dim:       DefaultDimension,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	o.call = func(ctx context.Context, texts []string) ([][]float32, error) {
		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			return nil, err
		}
		vectors := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if int(d.Index) >= len(vectors) {
				continue
			}
			vec := make([]float32, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float32(f)
			}
			vectors[d.Index] = vec
		}
		return vectors, nil
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dimension returns the vector size of the configured model.
func (o *OpenAI) Dimension() int {
	return o.dim
}

// Embed returns one vector per text, in order. Transient API failures are
// retried; a batch that exhausts its retries falls back to per-item calls,
// and an item that still fails comes back as a zero vector so the caller
// can mark its document for re-embedding.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := o.embedWithRetry(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("embed: batch failed, degrading to per-item calls",
				"batch_size", len(batch), "error", err)
			vectors = o.embedOneByOne(ctx, batch)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (o *OpenAI) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	return backoff.Retry(ctx, func() ([][]float32, error) {
		vectors, err := o.call(ctx, texts)
		if err != nil {
			return nil, classifyAPIError(err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embeddings response has %d vectors, want %d",
				len(vectors), len(texts))
		}
		return vectors, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
}

func (o *OpenAI) embedOneByOne(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.embedWithRetry(ctx, []string{text})
		if err != nil || len(vec) != 1 {
			o.logger.Warn("embed: item failed, emitting zero vector",
				"index", i, "error", err)
			vectors[i] = make([]float32, o.dim)
			continue
		}
		vectors[i] = vec[0]
	}
	return vectors
}

// classifyAPIError maps OpenAI API errors to backoff semantics: 429 honors
// Retry-After, other 4xx are permanent, everything else retries.
func classifyAPIError(err error) error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return err
	}
	switch {
	case apierr.StatusCode == 429:
		if ra := retryAfterHeader(apierr); ra != "" {
			if seconds, convErr := strconv.Atoi(ra); convErr == nil && seconds > 0 {
				return backoff.RetryAfter(seconds)
			}
		}
		return err
	case apierr.StatusCode >= 400 && apierr.StatusCode < 500:
		return backoff.Permanent(err)
	default:
		return err
	}
}

func retryAfterHeader(apierr *openai.Error) string {
	if apierr.Response == nil {
		return ""
	}
	return apierr.Response.Header.Get("Retry-After")
}

// IsZero reports whether a vector is the all-zero fallback emitted for an
// item that could not be embedded.
func IsZero(vec []float32) bool {
	for _, f := range vec {
		if f != 0 {
			return false
		}
	}
	return len(vec) > 0
}
