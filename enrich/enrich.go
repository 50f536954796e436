// Package enrich extracts plain-language metadata from document text with
// an LLM: summaries, holdings, cited authorities, and policy topics. A
// document whose extraction fails still completes ingestion with an empty
// enrichment record; enrichment is additive, never load-bearing.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/publiclaw/reporter/document"
)

// Enricher produces metadata for one document.
type Enricher interface {
	Enrich(ctx context.Context, doc *document.Document) (*document.Enrichment, error)
}

const (
	// DefaultModel balances extraction quality against per-document cost.
	DefaultModel = "gpt-4o-mini"

	temperature        = 0.2
	opinionMaxTokens   = 2000
	orderMaxTokens     = 1500
	maxTries           = 5
	maxTopics          = 8
	minTopics          = 5
	maxSourceTextChars = 60000
)

// callFunc issues one JSON-mode chat completion and returns the raw content.
type callFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)

// OpenAI implements Enricher against the OpenAI chat completions API.
type OpenAI struct {
	call   callFunc
	model  string
	logger *slog.Logger
}

// Option configures the OpenAI enricher.
type Option func(*OpenAI)

// WithModel overrides the extraction model.
func WithModel(model string) Option {
	return func(o *OpenAI) { o.model = model }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *OpenAI) { o.logger = l }
}

// NewOpenAI creates an enricher backed by the OpenAI API.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	o := &OpenAI{
		model:  DefaultModel,
		logger: slog.Default(),
	}
	o.call = func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(o.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Temperature:         openai.Float(temperature),
			MaxCompletionTokens: openai.Int(int64(maxTokens)),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in completion response")
		}
		return resp.Choices[0].Message.Content, nil
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enrich runs one extraction request, retrying once with a stricter prompt
// when the model returns malformed or incomplete JSON. A second bad answer
// degrades to an empty enrichment record rather than failing the document.
func (o *OpenAI) Enrich(ctx context.Context, doc *document.Document) (*document.Enrichment, error) {
	system, user, maxTokens := buildPrompt(doc)

	raw, err := o.complete(ctx, system, user, maxTokens)
	if err != nil {
		return nil, err
	}
	enrichment, parseErr := parseEnrichment(raw, doc.Type)
	if parseErr != nil {
		o.logger.Warn("enrich: malformed extraction, retrying with strict prompt",
			"document_id", doc.ID, "error", parseErr)
		raw, err = o.complete(ctx, strictPrefix+system, user, maxTokens)
		if err != nil {
			return nil, err
		}
		enrichment, parseErr = parseEnrichment(raw, doc.Type)
	}
	if parseErr != nil {
		o.logger.Warn("enrich: extraction failed twice, attaching empty enrichment",
			"document_id", doc.ID, "error", parseErr)
		return &document.Enrichment{}, nil
	}

	o.validate(enrichment, doc)
	return enrichment, nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return backoff.Retry(ctx, func() (string, error) {
		raw, err := o.call(ctx, system, user, maxTokens)
		if err != nil {
			return "", classifyAPIError(err)
		}
		return raw, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
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
		if apierr.Response != nil {
			if ra := apierr.Response.Header.Get("Retry-After"); ra != "" {
				if seconds, convErr := strconv.Atoi(ra); convErr == nil && seconds > 0 {
					return backoff.RetryAfter(seconds)
				}
			}
		}
		return err
	case apierr.StatusCode >= 400 && apierr.StatusCode < 500:
		return backoff.Permanent(err)
	default:
		return err
	}
}

// wireEnrichment is the flat JSON shape the model is asked for; per-type
// fields sit beside the shared ones.
type wireEnrichment struct {
	DocumentSummary         string   `json:"document_summary"`
	ConstitutionCited       []string `json:"constitution_cited"`
	FederalStatutesCited    []string `json:"federal_statutes_cited"`
	FederalRegulationsCited []string `json:"federal_regulations_cited"`
	CasesCited              []string `json:"cases_cited"`
	Topics                  []string `json:"topics_or_policy_areas"`

	HoldingPlain  string `json:"holding_plain"`
	OutcomeSimple string `json:"outcome_simple"`
	IssuePlain    string `json:"issue_plain"`
	Reasoning     string `json:"reasoning"`

	PlainSummary               string   `json:"plain_summary"`
	ActionPlain                string   `json:"action_plain"`
	ImpactSimple               string   `json:"impact_simple"`
	ImplementationRequirements string   `json:"implementation_requirements"`
	Agencies                   []string `json:"agencies_or_entities"`
	Revokes                    []string `json:"revokes"`
}

func parseEnrichment(raw string, docType document.Type) (*document.Enrichment, error) {
	var wire wireEnrichment
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return nil, fmt.Errorf("decoding extraction JSON: %w", err)
	}
	if wire.DocumentSummary == "" {
		return nil, fmt.Errorf("extraction missing document_summary")
	}

	e := &document.Enrichment{
		DocumentSummary:         wire.DocumentSummary,
		ConstitutionCited:       wire.ConstitutionCited,
		FederalStatutesCited:    wire.FederalStatutesCited,
		FederalRegulationsCited: wire.FederalRegulationsCited,
		CasesCited:              wire.CasesCited,
		Topics:                  wire.Topics,
	}
	switch docType {
	case document.TypeOpinion:
		if wire.HoldingPlain == "" {
			return nil, fmt.Errorf("extraction missing holding_plain")
		}
		e.Opinion = &document.OpinionEnrichment{
			HoldingPlain:  wire.HoldingPlain,
			OutcomeSimple: wire.OutcomeSimple,
			IssuePlain:    wire.IssuePlain,
			Reasoning:     wire.Reasoning,
		}
	case document.TypeOrder:
		if wire.PlainSummary == "" {
			return nil, fmt.Errorf("extraction missing plain_summary")
		}
		e.Order = &document.OrderEnrichment{
			PlainSummary:               wire.PlainSummary,
			ActionPlain:                wire.ActionPlain,
			ImpactSimple:               wire.ImpactSimple,
			ImplementationRequirements: wire.ImplementationRequirements,
			Agencies:                   wire.Agencies,
			Revokes:                    wire.Revokes,
		}
	}
	return e, nil
}

// stripFences tolerates a model that wraps its JSON in a markdown fence
// despite JSON mode.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// validate grounds citations and agency names in the source text and clamps
// the topic list. Hallucinated elements are dropped with a warning; they
// never fail the document.
func (o *OpenAI) validate(e *document.Enrichment, doc *document.Document) {
	source := normalizeWhitespace(doc.Text)

	e.ConstitutionCited = o.grounded(e.ConstitutionCited, source, doc.ID, "constitution_cited")
	e.FederalStatutesCited = o.grounded(e.FederalStatutesCited, source, doc.ID, "federal_statutes_cited")
	e.FederalRegulationsCited = o.grounded(e.FederalRegulationsCited, source, doc.ID, "federal_regulations_cited")
	if e.Order != nil {
		e.Order.Agencies = o.grounded(e.Order.Agencies, source, doc.ID, "agencies_or_entities")
	}

	if len(e.Topics) > maxTopics {
		e.Topics = e.Topics[:maxTopics]
	}
	if len(e.Topics) < minTopics {
		o.logger.Warn("enrich: fewer topics than expected",
			"document_id", doc.ID, "topics", len(e.Topics), "want_at_least", minTopics)
	}
}

// grounded keeps only elements that appear verbatim in the source text
// after whitespace normalization.
func (o *OpenAI) grounded(values []string, source, docID, field string) []string {
	if len(values) == 0 {
		return values
	}
	kept := values[:0]
	for _, v := range values {
		if strings.Contains(source, normalizeWhitespace(v)) {
			kept = append(kept, v)
			continue
		}
		o.logger.Warn("enrich: dropping ungrounded extraction",
			"document_id", docID, "field", field, "value", v)
	}
	return kept
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
