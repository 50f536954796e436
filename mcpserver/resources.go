package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/publiclaw/reporter/document"
)

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "opinion://{id}",
		Name:        "supreme-court-opinion",
		Description: "Full text of a US Supreme Court opinion, fetched live from CourtListener by opinion ID.",
		MIMEType:    "text/plain",
	}, s.readResource(document.TypeOpinion, "opinion://"))

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "order://{document_number}",
		Name:        "executive-order",
		Description: "Full text of an Executive Order, fetched live from the Federal Register by document number.",
		MIMEType:    "text/plain",
	}, s.readResource(document.TypeOrder, "order://"))
}

// readResource builds a handler that live-fetches the document named by the
// URI, bypassing the vector store entirely.
func (s *Server) readResource(t document.Type, prefix string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		id, ok := strings.CutPrefix(uri, prefix)
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed resource URI %q", uri)
		}

		ctx, cancel := s.deadline(ctx)
		defer cancel()

		doc, err := s.app.FetchFull(ctx, t, id)
		if err != nil {
			s.logger.Error("mcpserver: resource fetch failed", "uri", uri, "error", err)
			return nil, fmt.Errorf("reading %s: %w", uri, err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: "text/plain",
				Text:     FormatFullDocument(doc),
			}},
		}, nil
	}
}
