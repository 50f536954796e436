// Package document defines the domain model shared by the ingestion
// pipeline, the vector store, and the MCP server: fetched documents, their
// typed source metadata, LLM-extracted enrichment, and the chunk payloads
// that end up in the vector store.
package document

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of government document.
type Type string

const (
	// TypeOpinion is a US Supreme Court opinion from CourtListener.
	TypeOpinion Type = "scotus_opinion"

	// TypeOrder is an Executive Order from the Federal Register.
	TypeOrder Type = "executive_order"
)

// Collection names used in the vector store.
const (
	CollectionOpinions = "supreme_court_opinions"
	CollectionOrders   = "executive_orders"
)

// Collection returns the vector-store collection for the document type.
func (t Type) Collection() string {
	switch t {
	case TypeOpinion:
		return CollectionOpinions
	case TypeOrder:
		return CollectionOrders
	}
	return ""
}

// ParseType maps user-facing type names ("opinions", "orders", collection
// names, or the canonical values) to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "opinion", "opinions", "scotus", "scotus_opinion", CollectionOpinions:
		return TypeOpinion, nil
	case "order", "orders", "eo", "executive_order", CollectionOrders:
		return TypeOrder, nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Document is a fetched government document ready for processing.
type Document struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Date   string `json:"date"` // publication date, YYYY-MM-DD
	Type   Type   `json:"type"`
	Source string `json:"source"` // "CourtListener" or "Federal Register"
	URL    string `json:"url"`
	Text   string `json:"text"`

	// Meta carries per-source fields; exactly one concrete type per Type.
	Meta SourceMeta `json:"metadata,omitempty"`
}

// Year returns the four-digit year of the publication date, or "" when the
// date is absent or malformed.
func (d *Document) Year() string {
	if len(d.Date) < 4 {
		return ""
	}
	return d.Date[:4]
}

// SourceMeta is the closed set of per-source metadata types. Concrete types
// are OpinionMeta and OrderMeta.
type SourceMeta interface {
	sourceMeta()
}

// OpinionMeta holds the CourtListener fields attached to a Supreme Court
// opinion, joined from the opinion and cluster endpoints.
type OpinionMeta struct {
	CaseName      string     `json:"case_name,omitempty"`
	CaseNameShort string     `json:"case_name_short,omitempty"`
	DocketNumber  string     `json:"docket_number,omitempty"`
	Citations     []Citation `json:"citations,omitempty"`
	DateFiled     string     `json:"date_filed,omitempty"`
	ArguedDate    string     `json:"argued_date,omitempty"`
	DecidedDate   string     `json:"decided_date,omitempty"`
	VoteMajority  int        `json:"vote_majority,omitempty"`
	VoteMinority  int        `json:"vote_minority,omitempty"`
	AuthorID      string     `json:"author_id,omitempty"`
	DownloadURL   string     `json:"download_url,omitempty"`
	PageCount     int        `json:"page_count,omitempty"`
}

func (OpinionMeta) sourceMeta() {}

// OrderMeta holds the Federal Register fields attached to an Executive
// Order.
type OrderMeta struct {
	ExecutiveOrderNumber  string `json:"executive_order_number,omitempty"`
	President             string `json:"president,omitempty"`
	SigningDate           string `json:"signing_date,omitempty"`
	EffectiveDate         string `json:"effective_date,omitempty"`
	FederalRegisterNumber string `json:"federal_register_number,omitempty"`
	Citation              string `json:"citation,omitempty"`
}

func (OrderMeta) sourceMeta() {}

// metaEnvelope tags the concrete SourceMeta type for JSON round-trips.
type metaEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the document with a tagged metadata envelope so the
// concrete SourceMeta type survives a round-trip.
func (d Document) MarshalJSON() ([]byte, error) {
	type alias Document // drop methods to avoid recursion
	var env *metaEnvelope
	if d.Meta != nil {
		data, err := json.Marshal(d.Meta)
		if err != nil {
			return nil, err
		}
		env = &metaEnvelope{Data: data}
		switch d.Meta.(type) {
		case OpinionMeta, *OpinionMeta:
			env.Kind = "opinion"
		case OrderMeta, *OrderMeta:
			env.Kind = "order"
		default:
			return nil, fmt.Errorf("unknown source metadata type %T", d.Meta)
		}
	}
	return json.Marshal(struct {
		alias
		Meta *metaEnvelope `json:"metadata,omitempty"`
	}{alias(d), env})
}

// UnmarshalJSON decodes the tagged metadata envelope back into the concrete
// SourceMeta type.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	aux := struct {
		*alias
		Meta *metaEnvelope `json:"metadata,omitempty"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Meta = nil
	if aux.Meta == nil {
		return nil
	}
	switch aux.Meta.Kind {
	case "opinion":
		var m OpinionMeta
		if err := json.Unmarshal(aux.Meta.Data, &m); err != nil {
			return err
		}
		d.Meta = m
	case "order":
		var m OrderMeta
		if err := json.Unmarshal(aux.Meta.Data, &m); err != nil {
			return err
		}
		d.Meta = m
	default:
		return fmt.Errorf("unknown source metadata kind %q", aux.Meta.Kind)
	}
	return nil
}
