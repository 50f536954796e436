package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/publiclaw/reporter"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/vectorstore"
)

// Opinion-type values accepted by search_court_opinions.
var opinionTypes = map[string]bool{
	"syllabus":   true,
	"majority":   true,
	"concurring": true,
	"dissenting": true,
	"mixed":      true,
}

type searchDocumentsInput struct {
	Query         string   `json:"query" jsonschema:"natural-language search query"`
	DocumentTypes []string `json:"document_types,omitempty" jsonschema:"restrict to document types: scotus_opinion and/or executive_order (default both)"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

type searchOpinionsInput struct {
	Query       string `json:"query" jsonschema:"natural-language search query"`
	OpinionType string `json:"opinion_type,omitempty" jsonschema:"one of: syllabus, majority, concurring, dissenting, mixed"`
	Justice     string `json:"justice,omitempty" jsonschema:"authoring justice surname, e.g. Roberts"`
	DateFrom    string `json:"date_from,omitempty" jsonschema:"earliest decision date, YYYY-MM-DD"`
	DateTo      string `json:"date_to,omitempty" jsonschema:"latest decision date, YYYY-MM-DD"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

type searchOrdersInput struct {
	Query           string   `json:"query" jsonschema:"natural-language search query"`
	President       string   `json:"president,omitempty" jsonschema:"signing president, e.g. Biden"`
	Agencies        []string `json:"agencies,omitempty" jsonschema:"match orders naming any of these agencies"`
	PolicyTopics    []string `json:"policy_topics,omitempty" jsonschema:"match orders tagged with any of these policy topics"`
	SigningDateFrom string   `json:"signing_date_from,omitempty" jsonschema:"earliest signing date, YYYY-MM-DD"`
	SigningDateTo   string   `json:"signing_date_to,omitempty" jsonschema:"latest signing date, YYYY-MM-DD"`
	Limit           int      `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

type getDocumentInput struct {
	DocumentID   string `json:"document_id" jsonschema:"chunk ID from a search result"`
	Collection   string `json:"collection" jsonschema:"collection the chunk lives in: supreme_court_opinions or executive_orders"`
	FullDocument bool   `json:"full_document,omitempty" jsonschema:"fetch the complete document text live from the source API"`
}

type listCollectionsInput struct{}

// schemaFor infers an input schema and applies enum constraints so clients
// see the valid values, not just free-form strings.
func schemaFor[T any](constrain func(*jsonschema.Schema)) *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err) // registration-time programmer error
	}
	if constrain != nil {
		constrain(schema)
	}
	return schema
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_government_documents",
		Description: "Semantic search across all ingested US government documents " +
			"(Supreme Court opinions and Executive Orders), merged by relevance.",
		InputSchema: schemaFor[searchDocumentsInput](func(schema *jsonschema.Schema) {
			schema.Properties["document_types"].Items.Enum = []any{
				string(document.TypeOpinion), string(document.TypeOrder),
			}
		}),
	}, s.searchDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_court_opinions",
		Description: "Semantic search over US Supreme Court opinions, optionally " +
			"filtered by opinion type, authoring justice, and decision date.",
		InputSchema: schemaFor[searchOpinionsInput](func(schema *jsonschema.Schema) {
			schema.Properties["opinion_type"].Enum = []any{
				"syllabus", "majority", "concurring", "dissenting", "mixed",
			}
		}),
	}, s.searchOpinions)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_executive_orders",
		Description: "Semantic search over Executive Orders, optionally filtered " +
			"by president, agencies, policy topics, and signing date.",
	}, s.searchOrders)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_document_by_id",
		Description: "Look up one stored chunk by its ID. With full_document the " +
			"complete document text is fetched live from the source API.",
	}, s.getDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_collections",
		Description: "List the available document collections with their sizes.",
	}, s.listCollections)
}

func (s *Server) searchDocuments(ctx context.Context, req *mcp.CallToolRequest, in searchDocumentsInput) (*mcp.CallToolResult, any, error) {
	var collections []string
	for _, raw := range in.DocumentTypes {
		t, err := document.ParseType(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid document_types value %q: use scotus_opinion or executive_order", raw)
		}
		collections = append(collections, t.Collection())
	}
	return s.runSearch(ctx, reporter.SearchRequest{
		Query:       in.Query,
		Collections: collections,
		Limit:       in.Limit,
	})
}

func (s *Server) searchOpinions(ctx context.Context, req *mcp.CallToolRequest, in searchOpinionsInput) (*mcp.CallToolResult, any, error) {
	if in.OpinionType != "" && !opinionTypes[in.OpinionType] {
		return nil, nil, fmt.Errorf("invalid opinion_type %q: use syllabus, majority, concurring, dissenting, or mixed", in.OpinionType)
	}
	filter := vectorstore.NewFilter().
		Eq("opinion_type", in.OpinionType).
		Eq("authoring_justice", in.Justice).
		DateRange("publication_date", in.DateFrom, in.DateTo)
	return s.runSearch(ctx, reporter.SearchRequest{
		Query:       in.Query,
		Collections: []string{document.CollectionOpinions},
		Limit:       in.Limit,
		Filter:      filter,
	})
}

func (s *Server) searchOrders(ctx context.Context, req *mcp.CallToolRequest, in searchOrdersInput) (*mcp.CallToolResult, any, error) {
	filter := vectorstore.NewFilter().
		Eq("president", in.President).
		In("agencies_or_entities", in.Agencies).
		In("topics_or_policy_areas", in.PolicyTopics).
		DateRange("signing_date", in.SigningDateFrom, in.SigningDateTo)
	return s.runSearch(ctx, reporter.SearchRequest{
		Query:       in.Query,
		Collections: []string{document.CollectionOrders},
		Limit:       in.Limit,
		Filter:      filter,
	})
}

// runSearch is the shared tail of the three search tools: run the query,
// shape the hits as markdown. Invalid input surfaces as a protocol error;
// anything else becomes a tool error result so the server stays alive.
func (s *Server) runSearch(ctx context.Context, req reporter.SearchRequest) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	hits, err := s.app.Search(ctx, req)
	if err != nil {
		if errors.Is(err, reporter.ErrInvalidInput) {
			return nil, nil, err
		}
		s.logger.Error("mcpserver: search failed", "query", req.Query, "error", err)
		return toolError(fmt.Sprintf("search failed: %v", err)), nil, nil
	}

	text := FormatResults(req.Query, hits, FormatOptions{
		MaxChunkChars: s.cfg.MaxChunkChars,
		HintMaxHits:   s.cfg.HintMaxHits,
		HintMinScore:  s.cfg.HintMinScore,
	})
	return textResult(text), nil, nil
}

func (s *Server) getDocument(ctx context.Context, req *mcp.CallToolRequest, in getDocumentInput) (*mcp.CallToolResult, any, error) {
	if in.DocumentID == "" {
		return nil, nil, fmt.Errorf("document_id is required")
	}
	t, err := document.ParseType(in.Collection)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid collection %q: use %s or %s",
			in.Collection, document.CollectionOpinions, document.CollectionOrders)
	}

	ctx, cancel := s.deadline(ctx)
	defer cancel()

	hit, err := s.app.GetChunk(ctx, t.Collection(), in.DocumentID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return toolError(fmt.Sprintf("no chunk %s in collection %s", in.DocumentID, t.Collection())), nil, nil
	}
	if err != nil {
		s.logger.Error("mcpserver: chunk lookup failed", "chunk_id", in.DocumentID, "error", err)
		return toolError(fmt.Sprintf("lookup failed: %v", err)), nil, nil
	}

	if !in.FullDocument {
		return textResult(FormatChunk(hit)), nil, nil
	}

	docID, _ := hit.Payload["document_id"].(string)
	if docID == "" {
		return toolError("stored chunk carries no source document ID"), nil, nil
	}
	doc, err := s.app.FetchFull(ctx, t, docID)
	if err != nil {
		s.logger.Error("mcpserver: live fetch failed", "document_id", docID, "error", err)
		return toolError(fmt.Sprintf("fetching full document %s: %v", docID, err)), nil, nil
	}
	return textResult(FormatFullDocument(doc)), nil, nil
}

func (s *Server) listCollections(ctx context.Context, req *mcp.CallToolRequest, in listCollectionsInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	infos, err := s.app.ListCollections(ctx)
	if err != nil {
		s.logger.Error("mcpserver: listing collections failed", "error", err)
		return toolError(fmt.Sprintf("listing collections: %v", err)), nil, nil
	}

	var b strings.Builder
	b.WriteString("## Collections\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "\n### %s\n", info.Name)
		fmt.Fprintf(&b, "- Points: %d\n- Dimension: %d\n- Metric: %s\n", info.Count, info.Dim, info.Metric)
		if blurb := collectionBlurb(info.Name); blurb != "" {
			fmt.Fprintf(&b, "- %s\n", blurb)
		}
	}
	if len(infos) == 0 {
		b.WriteString("\nNo collections yet. Run an ingest first.\n")
	}
	return textResult(b.String()), nil, nil
}

func collectionBlurb(name string) string {
	switch name {
	case document.CollectionOpinions:
		return "US Supreme Court opinions from CourtListener, chunked by opinion and section."
	case document.CollectionOrders:
		return "Executive Orders from the Federal Register, chunked by section."
	}
	return ""
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
