package mcpserver

import (
	"fmt"
	"strings"

	"github.com/publiclaw/reporter"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/vectorstore"
)

// FormatOptions tunes search-result shaping. Zero values fall back to the
// built-in defaults.
type FormatOptions struct {
	MaxChunkChars int     // excerpt cap in characters
	HintMaxHits   int     // full-document hint fires at or below this many hits
	HintMinScore  float64 // and only when every hit scores at least this
}

func (o FormatOptions) withDefaults() FormatOptions {
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = 2000
	}
	if o.HintMaxHits <= 0 {
		o.HintMaxHits = 3
	}
	if o.HintMinScore <= 0 {
		o.HintMinScore = 0.4
	}
	return o
}

// FormatResults renders search hits as markdown for MCP clients and the
// query CLI command.
func FormatResults(query string, hits []reporter.SearchHit, opts FormatOptions) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for query: '%s'", query)
	}
	opts = opts.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "## Search Results for: %q\n", query)
	for i, hit := range hits {
		b.WriteString("\n")
		writeHit(&b, i+1, hit, opts)
	}
	if shouldHintFullDocument(hits, opts) {
		b.WriteString("\nFew, highly relevant matches. For complete context, call " +
			"get_document_by_id with full_document=true on a result above.\n")
	}
	return b.String()
}

func writeHit(b *strings.Builder, n int, hit reporter.SearchHit, opts FormatOptions) {
	p, err := document.PayloadFromMap(hit.Payload)
	if err != nil {
		// A payload that does not decode still shows its raw text.
		fmt.Fprintf(b, "### %d. %s\n", n, hit.ChunkID)
		fmt.Fprintf(b, "**Relevance:** %.3f\n", hit.Score)
		if text, ok := hit.Payload["text"].(string); ok {
			fmt.Fprintf(b, "**Excerpt:** %s\n", truncate(text, opts.MaxChunkChars))
		}
		return
	}

	title := p.Title
	if title == "" {
		title = p.DocumentID
	}
	fmt.Fprintf(b, "### %d. %s\n", n, title)
	fmt.Fprintf(b, "**Relevance:** %.3f\n", hit.Score)
	if line := contextLine(p); line != "" {
		fmt.Fprintf(b, "**Context:** %s\n", line)
	}
	fmt.Fprintf(b, "**Excerpt:** %s\n", truncate(p.Text, opts.MaxChunkChars))
	if p.DocumentSummary != "" {
		fmt.Fprintf(b, "**Summary:** %s\n", p.DocumentSummary)
	}
	if cite := citation(p); cite != "" {
		fmt.Fprintf(b, "**Citation:** %s\n", cite)
	}
	if p.URL != "" {
		fmt.Fprintf(b, "**URL:** %s\n", p.URL)
	}
	fmt.Fprintf(b, "**Chunk ID:** %s\n", p.ChunkID)
}

// contextLine renders the hierarchical position of the chunk inside its
// document: opinion type, justice, and section for opinions; EO number,
// president, and section title for orders.
func contextLine(p *document.Payload) string {
	var parts []string
	switch {
	case p.Opinion() != nil:
		o := p.Opinion()
		if o.OpinionType != "" {
			parts = append(parts, capitalize(o.OpinionType)+" opinion")
		}
		if o.AuthoringJustice != "" {
			parts = append(parts, "Justice "+o.AuthoringJustice)
		}
		if p.SectionLabel != "" {
			parts = append(parts, p.SectionLabel)
		}
	case p.Order() != nil:
		o := p.Order()
		if o.ExecutiveOrderNumber != "" {
			parts = append(parts, "Executive Order "+o.ExecutiveOrderNumber)
		}
		if o.President != "" {
			parts = append(parts, "President "+o.President)
		}
		if o.SectionTitle != "" {
			parts = append(parts, o.SectionTitle)
		}
	}
	return strings.Join(parts, " | ")
}

func citation(p *document.Payload) string {
	if o := p.Opinion(); o != nil {
		return o.BluebookCitation
	}
	if o := p.Order(); o != nil {
		return o.BluebookCitation
	}
	return ""
}

// shouldHintFullDocument reports whether the result set is small and strong
// enough that reading the whole document is likely the better next step.
func shouldHintFullDocument(hits []reporter.SearchHit, opts FormatOptions) bool {
	if len(hits) == 0 || len(hits) > opts.HintMaxHits {
		return false
	}
	for _, h := range hits {
		if h.Score < opts.HintMinScore {
			return false
		}
	}
	return true
}

// FormatChunk renders one stored chunk payload for get_document_by_id.
func FormatChunk(hit *vectorstore.Hit) string {
	p, err := document.PayloadFromMap(hit.Payload)
	if err != nil {
		if text, ok := hit.Payload["text"].(string); ok {
			return text
		}
		return fmt.Sprintf("chunk %s has no readable payload", hit.ChunkID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", p.Title)
	if line := contextLine(p); line != "" {
		fmt.Fprintf(&b, "**Context:** %s\n", line)
	}
	if cite := citation(p); cite != "" {
		fmt.Fprintf(&b, "**Citation:** %s\n", cite)
	}
	fmt.Fprintf(&b, "**Chunk:** %d (%s)\n", p.ChunkIndex, p.ChunkID)
	if p.URL != "" {
		fmt.Fprintf(&b, "**URL:** %s\n", p.URL)
	}
	b.WriteString("\n")
	b.WriteString(p.Text)
	return b.String()
}

// FormatFullDocument renders a live-fetched document: title and citation
// header, then the complete text.
func FormatFullDocument(doc *document.Document) string {
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteString("\n")
	if cite := sourceCitation(doc); cite != "" {
		b.WriteString(cite)
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\n")
	b.WriteString(doc.Text)
	return b.String()
}

func sourceCitation(doc *document.Document) string {
	switch meta := doc.Meta.(type) {
	case document.OpinionMeta:
		return document.FormatBluebook(meta.Citations, meta.DateFiled)
	case document.OrderMeta:
		if meta.Citation != "" {
			return meta.Citation
		}
		if meta.ExecutiveOrderNumber != "" {
			return "Executive Order " + meta.ExecutiveOrderNumber
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "… [truncated]"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
