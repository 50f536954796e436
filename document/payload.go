package document

import (
	"encoding/json"
	"fmt"
)

// PayloadHeader carries the document-level fields shared by every stored
// chunk, including the LLM-extracted enrichment.
type PayloadHeader struct {
	DocumentID      string `json:"document_id"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	Year            string `json:"year,omitempty"`
	Source          string `json:"source"`
	Type            Type   `json:"type"`
	URL             string `json:"url,omitempty"`

	DocumentSummary         string   `json:"document_summary,omitempty"`
	ConstitutionCited       []string `json:"constitution_cited,omitempty"`
	FederalStatutesCited    []string `json:"federal_statutes_cited,omitempty"`
	FederalRegulationsCited []string `json:"federal_regulations_cited,omitempty"`
	CasesCited              []string `json:"cases_cited,omitempty"`
	Topics                  []string `json:"topics_or_policy_areas,omitempty"`
}

// ChunkRef carries the chunk-level fields of a stored payload.
type ChunkRef struct {
	ChunkID      string `json:"chunk_id"`
	ChunkIndex   int    `json:"chunk_index"`
	SectionLabel string `json:"section_label,omitempty"`
	TokenCount   int    `json:"token_count,omitempty"`
	Text         string `json:"text"`
}

// PayloadDetail is the per-type half of a payload. Concrete types are
// OpinionPayload and OrderPayload.
type PayloadDetail interface {
	payloadDetail()
}

// OpinionPayload holds the Supreme Court fields of a stored chunk. The
// opinion type, authoring justice, and section label come from structure
// detection and vary per chunk; the rest is document-level.
type OpinionPayload struct {
	CaseName         string `json:"case_name,omitempty"`
	CaseNameShort    string `json:"case_name_short,omitempty"`
	DocketNumber     string `json:"docket_number,omitempty"`
	BluebookCitation string `json:"bluebook_citation,omitempty"`
	OpinionType      string `json:"opinion_type,omitempty"`
	AuthoringJustice string `json:"authoring_justice,omitempty"`
	VoteMajority     int    `json:"vote_majority,omitempty"`
	VoteMinority     int    `json:"vote_minority,omitempty"`
	ArguedDate       string `json:"argued_date,omitempty"`
	DecidedDate      string `json:"decided_date,omitempty"`
	HoldingPlain     string `json:"holding_plain,omitempty"`
	OutcomeSimple    string `json:"outcome_simple,omitempty"`
	IssuePlain       string `json:"issue_plain,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
}

func (OpinionPayload) payloadDetail() {}

// OrderPayload holds the Executive Order fields of a stored chunk. The
// chunk type, section title, and subsection label come from structure
// detection and vary per chunk.
type OrderPayload struct {
	ExecutiveOrderNumber       string   `json:"executive_order_number,omitempty"`
	President                  string   `json:"president,omitempty"`
	SigningDate                string   `json:"signing_date,omitempty"`
	EffectiveDate              string   `json:"effective_date,omitempty"`
	FederalRegisterNumber      string   `json:"federal_register_number,omitempty"`
	BluebookCitation           string   `json:"bluebook_citation,omitempty"`
	PlainSummary               string   `json:"plain_summary,omitempty"`
	ActionPlain                string   `json:"action_plain,omitempty"`
	ImpactSimple               string   `json:"impact_simple,omitempty"`
	ImplementationRequirements string   `json:"implementation_requirements,omitempty"`
	Agencies                   []string `json:"agencies_or_entities,omitempty"`
	Revokes                    []string `json:"revokes,omitempty"`
	ChunkType                  string   `json:"chunk_type,omitempty"` // header, section, or tail
	SectionTitle               string   `json:"section_title,omitempty"`
	SubsectionLabel            string   `json:"subsection_label,omitempty"`
}

func (OrderPayload) payloadDetail() {}

// Payload is the complete record stored alongside a chunk's vector:
// shared header, chunk fields, and the per-type detail. It serializes to a
// single flat JSON object so both vector-store backends can filter on
// top-level field names.
type Payload struct {
	PayloadHeader
	ChunkRef
	Detail PayloadDetail
}

// MarshalJSON flattens header, chunk, and detail into one object.
func (p Payload) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for _, part := range []any{p.PayloadHeader, p.ChunkRef, p.Detail} {
		if part == nil {
			continue
		}
		data, err := json.Marshal(part)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON rebuilds the typed payload from a flat object, selecting
// the detail type from the "type" field.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &p.PayloadHeader); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &p.ChunkRef); err != nil {
		return err
	}
	switch p.Type {
	case TypeOpinion:
		var d OpinionPayload
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		p.Detail = d
	case TypeOrder:
		var d OrderPayload
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		p.Detail = d
	case "":
		return fmt.Errorf("payload missing type field")
	default:
		return fmt.Errorf("payload has unknown type %q", p.Type)
	}
	return nil
}

// Opinion returns the opinion detail, or nil for other payload types.
func (p *Payload) Opinion() *OpinionPayload {
	if d, ok := p.Detail.(OpinionPayload); ok {
		return &d
	}
	return nil
}

// Order returns the order detail, or nil for other payload types.
func (p *Payload) Order() *OrderPayload {
	if d, ok := p.Detail.(OrderPayload); ok {
		return &d
	}
	return nil
}

// ToMap renders the payload as the flat key/value form used by the vector
// store backends.
func (p Payload) ToMap() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// PayloadFromMap is the inverse of ToMap.
func PayloadFromMap(m map[string]any) (*Payload, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
