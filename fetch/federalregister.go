package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/publiclaw/reporter/document"
)

const (
	federalRegisterBaseURL = "https://www.federalregister.gov/api/v1"

	// federalRegisterRateLimit spaces requests for the unauthenticated
	// public API, which throttles aggressively below ~1 req/s.
	federalRegisterRateLimit = 1100 * time.Millisecond

	federalRegisterPageSize = 100
)

// documentFields is the explicit field list requested from the documents
// endpoints; the API returns everything without it, most of which is noise.
var documentFields = []string{
	"document_number",
	"title",
	"executive_order_number",
	"publication_date",
	"signing_date",
	"president",
	"citation",
	"html_url",
	"pdf_url",
	"raw_text_url",
}

// FederalRegister fetches Executive Orders from the Federal Register v1
// API. No authentication is required.
type FederalRegister struct {
	http    httpGetter
	baseURL string
	logger  *slog.Logger
}

// FederalRegisterOption configures the fetcher.
type FederalRegisterOption func(*FederalRegister)

// WithFederalRegisterBaseURL overrides the API base URL.
func WithFederalRegisterBaseURL(base string) FederalRegisterOption {
	return func(f *FederalRegister) { f.baseURL = strings.TrimSuffix(base, "/") }
}

// WithFederalRegisterLogger replaces the default logger.
func WithFederalRegisterLogger(l *slog.Logger) FederalRegisterOption {
	return func(f *FederalRegister) { f.logger = l }
}

// NewFederalRegister creates an Executive Order fetcher.
func NewFederalRegister(opts ...FederalRegisterOption) *FederalRegister {
	f := &FederalRegister{
		http:    newHTTPGetter(federalRegisterRateLimit),
		baseURL: federalRegisterBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type orderListPage struct {
	Count      int `json:"count"`
	TotalPages int `json:"total_pages"`
	Results    []struct {
		DocumentNumber string `json:"document_number"`
	} `json:"results"`
}

type orderRecord struct {
	DocumentNumber string `json:"document_number"`
	Title          string `json:"title"`
	// The API has returned this both as a string and as a number.
	ExecutiveOrderNumber json.Number `json:"executive_order_number"`
	PublicationDate      string      `json:"publication_date"`
	SigningDate          string      `json:"signing_date"`
	President            struct {
		Name string `json:"name"`
	} `json:"president"`
	Citation   string `json:"citation"`
	HTMLURL    string `json:"html_url"`
	RawTextURL string `json:"raw_text_url"`
}

// ListIDs streams Executive Order document numbers signed in [start, end],
// oldest first, walking the page counter to total_pages.
func (f *FederalRegister) ListIDs(ctx context.Context, start, end string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for page := 1; ; page++ {
			params := url.Values{
				"conditions[type]":                       {"PRESDOCU"},
				"conditions[presidential_document_type]": {"executive_order"},
				"fields[]":                               {"document_number"},
				"order":                                  {"oldest"},
				"per_page":                               {fmt.Sprintf("%d", federalRegisterPageSize)},
				"page":                                   {fmt.Sprintf("%d", page)},
			}
			if start != "" {
				params.Set("conditions[signing_date][gte]", start)
			}
			if end != "" {
				params.Set("conditions[signing_date][lte]", end)
			}

			var resp orderListPage
			u := f.baseURL + "/documents?" + params.Encode()
			if err := f.http.getJSON(ctx, u, nil, &resp); err != nil {
				yield("", fmt.Errorf("listing executive orders: %w", err))
				return
			}
			for _, r := range resp.Results {
				if !yield(r.DocumentNumber, nil) {
					return
				}
			}
			if page >= resp.TotalPages {
				return
			}
		}
	}
}

// Fetch retrieves one Executive Order's metadata and full text.
func (f *FederalRegister) Fetch(ctx context.Context, id string) (*document.Document, error) {
	params := url.Values{"fields[]": documentFields}
	u := f.baseURL + "/documents/" + id + "?" + params.Encode()

	var rec orderRecord
	if err := f.http.getJSON(ctx, u, nil, &rec); err != nil {
		return nil, fmt.Errorf("fetching executive order %s: %w", id, err)
	}

	var text string
	if rec.RawTextURL != "" {
		body, err := f.http.get(ctx, rec.RawTextURL, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching raw text for %s: %w", id, err)
		}
		text = extractRawText(string(body))
	} else {
		f.logger.Warn("federalregister: no raw text URL", "document_number", id)
	}

	date := rec.SigningDate
	if date == "" {
		date = rec.PublicationDate
	}

	return &document.Document{
		ID:     rec.DocumentNumber,
		Title:  rec.Title,
		Date:   date,
		Type:   document.TypeOrder,
		Source: "Federal Register",
		URL:    rec.HTMLURL,
		Text:   text,
		Meta: document.OrderMeta{
			ExecutiveOrderNumber:  rec.ExecutiveOrderNumber.String(),
			President:             rec.President.Name,
			SigningDate:           rec.SigningDate,
			EffectiveDate:         rec.PublicationDate,
			FederalRegisterNumber: rec.DocumentNumber,
			Citation:              rec.Citation,
		},
	}, nil
}
