package pipeline

import (
	"fmt"

	"github.com/publiclaw/reporter/chunker"
	"github.com/publiclaw/reporter/document"
	"github.com/publiclaw/reporter/vectorstore"
)

// buildPoints assembles the vector-store points for a document's chunks:
// deterministic IDs, flat payloads, and the texts to embed. Vectors are
// attached by the caller after embedding.
func buildPoints(doc *document.Document, enrichment *document.Enrichment, chunks []chunker.Chunk) ([]vectorstore.Point, []string, error) {
	header := buildHeader(doc, enrichment)

	points := make([]vectorstore.Point, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		chunkID := document.ChunkID(doc.ID, i)
		payload := document.Payload{
			PayloadHeader: header,
			ChunkRef: document.ChunkRef{
				ChunkID:      chunkID,
				ChunkIndex:   i,
				SectionLabel: ch.SectionLabel,
				TokenCount:   ch.TokenCount,
				Text:         ch.Text,
			},
			Detail: buildDetail(doc, enrichment, ch),
		}
		m, err := payload.ToMap()
		if err != nil {
			return nil, nil, fmt.Errorf("encoding payload for chunk %d: %w", i, err)
		}
		points = append(points, vectorstore.Point{ChunkID: chunkID, Payload: m})
		texts = append(texts, ch.Text)
	}
	return points, texts, nil
}

func buildHeader(doc *document.Document, e *document.Enrichment) document.PayloadHeader {
	h := document.PayloadHeader{
		DocumentID:      doc.ID,
		Title:           doc.Title,
		PublicationDate: doc.Date,
		Year:            doc.Year(),
		Source:          doc.Source,
		Type:            doc.Type,
		URL:             doc.URL,
	}
	if e != nil {
		h.DocumentSummary = e.DocumentSummary
		h.ConstitutionCited = e.ConstitutionCited
		h.FederalStatutesCited = e.FederalStatutesCited
		h.FederalRegulationsCited = e.FederalRegulationsCited
		h.CasesCited = e.CasesCited
		h.Topics = e.Topics
	}
	return h
}

func buildDetail(doc *document.Document, e *document.Enrichment, ch chunker.Chunk) document.PayloadDetail {
	switch doc.Type {
	case document.TypeOrder:
		d := document.OrderPayload{
			ChunkType:       ch.ChunkType,
			SectionTitle:    ch.SectionTitle,
			SubsectionLabel: ch.SubsectionLabel,
		}
		if meta, ok := doc.Meta.(document.OrderMeta); ok {
			d.ExecutiveOrderNumber = meta.ExecutiveOrderNumber
			d.President = meta.President
			d.SigningDate = meta.SigningDate
			d.EffectiveDate = meta.EffectiveDate
			d.FederalRegisterNumber = meta.FederalRegisterNumber
			d.BluebookCitation = meta.Citation
		}
		if e != nil && e.Order != nil {
			d.PlainSummary = e.Order.PlainSummary
			d.ActionPlain = e.Order.ActionPlain
			d.ImpactSimple = e.Order.ImpactSimple
			d.ImplementationRequirements = e.Order.ImplementationRequirements
			d.Agencies = e.Order.Agencies
			d.Revokes = e.Order.Revokes
		}
		return d
	default:
		d := document.OpinionPayload{
			OpinionType:      ch.OpinionType,
			AuthoringJustice: ch.Justice,
		}
		if meta, ok := doc.Meta.(document.OpinionMeta); ok {
			d.CaseName = meta.CaseName
			d.CaseNameShort = meta.CaseNameShort
			d.DocketNumber = meta.DocketNumber
			d.BluebookCitation = document.FormatBluebook(meta.Citations, meta.DateFiled)
			d.VoteMajority = meta.VoteMajority
			d.VoteMinority = meta.VoteMinority
			d.ArguedDate = meta.ArguedDate
			d.DecidedDate = meta.DecidedDate
		}
		if e != nil && e.Opinion != nil {
			d.HoldingPlain = e.Opinion.HoldingPlain
			d.OutcomeSimple = e.Opinion.OutcomeSimple
			d.IssuePlain = e.Opinion.IssuePlain
			d.Reasoning = e.Opinion.Reasoning
		}
		return d
	}
}
