package document

// Enrichment is the LLM-extracted metadata for one document. A failed
// extraction leaves the zero value attached so the document still completes
// with searchable text and source metadata.
type Enrichment struct {
	DocumentSummary         string   `json:"document_summary"`
	ConstitutionCited       []string `json:"constitution_cited"`
	FederalStatutesCited    []string `json:"federal_statutes_cited"`
	FederalRegulationsCited []string `json:"federal_regulations_cited"`
	CasesCited              []string `json:"cases_cited"`
	Topics                  []string `json:"topics_or_policy_areas"`

	Opinion *OpinionEnrichment `json:"opinion,omitempty"`
	Order   *OrderEnrichment   `json:"order,omitempty"`
}

// OpinionEnrichment holds the plain-language fields extracted for a
// Supreme Court opinion.
type OpinionEnrichment struct {
	HoldingPlain  string `json:"holding_plain"`
	OutcomeSimple string `json:"outcome_simple"`
	IssuePlain    string `json:"issue_plain"`
	Reasoning     string `json:"reasoning"`
}

// OrderEnrichment holds the plain-language fields extracted for an
// Executive Order.
type OrderEnrichment struct {
	PlainSummary               string   `json:"plain_summary"`
	ActionPlain                string   `json:"action_plain"`
	ImpactSimple               string   `json:"impact_simple"`
	ImplementationRequirements string   `json:"implementation_requirements"`
	Agencies                   []string `json:"agencies_or_entities"`
	Revokes                    []string `json:"revokes"`
}

// Empty reports whether the enrichment carries no extracted content.
func (e *Enrichment) Empty() bool {
	if e == nil {
		return true
	}
	return e.DocumentSummary == "" &&
		len(e.ConstitutionCited) == 0 &&
		len(e.FederalStatutesCited) == 0 &&
		len(e.FederalRegulationsCited) == 0 &&
		len(e.CasesCited) == 0 &&
		len(e.Topics) == 0 &&
		e.Opinion == nil &&
		e.Order == nil
}
