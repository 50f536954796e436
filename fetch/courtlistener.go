package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/publiclaw/reporter/document"
)

const (
	courtListenerBaseURL = "https://www.courtlistener.com/api/rest/v4"
	courtListenerWebURL  = "https://www.courtlistener.com"

	// courtListenerRateLimit spaces requests per CourtListener's guidance
	// for authenticated clients.
	courtListenerRateLimit = 100 * time.Millisecond

	// earliestOpinionDate backstops an open start date.
	earliestOpinionDate = "1900-01-01"
)

// CourtListener fetches Supreme Court opinions from the CourtListener v4
// REST API. Each opinion is joined with its cluster record for case names,
// citations, and vote counts.
type CourtListener struct {
	http    httpGetter
	baseURL string
	token   string
	logger  *slog.Logger
}

// CourtListenerOption configures the fetcher.
type CourtListenerOption func(*CourtListener)

// WithCourtListenerBaseURL overrides the API base URL.
func WithCourtListenerBaseURL(base string) CourtListenerOption {
	return func(c *CourtListener) { c.baseURL = strings.TrimSuffix(base, "/") }
}

// WithCourtListenerLogger replaces the default logger.
func WithCourtListenerLogger(l *slog.Logger) CourtListenerOption {
	return func(c *CourtListener) { c.logger = l }
}

// NewCourtListener creates a fetcher authenticated with an API token.
func NewCourtListener(token string, opts ...CourtListenerOption) *CourtListener {
	c := &CourtListener{
		http:    newHTTPGetter(courtListenerRateLimit),
		baseURL: courtListenerBaseURL,
		token:   token,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CourtListener) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Token "+c.token)
	}
	return h
}

type opinionListPage struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

type opinionRecord struct {
	ID                int         `json:"id"`
	Cluster           string      `json:"cluster"`
	DateCreated       string      `json:"date_created"`
	PlainText         string      `json:"plain_text"`
	HTMLWithCitations string      `json:"html_with_citations"`
	DownloadURL       string      `json:"download_url"`
	AuthorID          json.Number `json:"author_id"`
	PageCount         int         `json:"page_count"`
}

type clusterRecord struct {
	CaseName          string              `json:"case_name"`
	CaseNameShort     string              `json:"case_name_short"`
	DocketNumber      string              `json:"docket_number"`
	Citations         []document.Citation `json:"citations"`
	DateFiled         string              `json:"date_filed"`
	DateArgued        string              `json:"date_argued"`
	ScdbVotesMajority int                 `json:"scdb_votes_majority"`
	ScdbVotesMinority int                 `json:"scdb_votes_minority"`
	AbsoluteURL       string              `json:"absolute_url"`
}

// ListIDs streams Supreme Court opinion IDs created in [start, end],
// oldest first, following the API's cursor pagination lazily.
func (c *CourtListener) ListIDs(ctx context.Context, start, end string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if start == "" {
			start = earliestOpinionDate
		}
		params := url.Values{
			"cluster__docket__court": {"scotus"},
			"order_by":               {"date_created"},
			"date_created__gte":      {start},
		}
		if end != "" {
			params.Set("date_created__lte", end)
		}
		next := c.baseURL + "/opinions/?" + params.Encode()

		for next != "" {
			var page opinionListPage
			if err := c.http.getJSON(ctx, next, c.header(), &page); err != nil {
				yield("", fmt.Errorf("listing opinions: %w", err))
				return
			}
			for _, r := range page.Results {
				if !yield(fmt.Sprintf("%d", r.ID), nil) {
					return
				}
			}
			next = page.Next
		}
	}
}

// Fetch retrieves one opinion and joins its cluster record. A cluster
// failure degrades to opinion-only metadata rather than failing the
// document.
func (c *CourtListener) Fetch(ctx context.Context, id string) (*document.Document, error) {
	var op opinionRecord
	if err := c.http.getJSON(ctx, c.baseURL+"/opinions/"+id+"/", c.header(), &op); err != nil {
		return nil, fmt.Errorf("fetching opinion %s: %w", id, err)
	}

	meta := document.OpinionMeta{
		AuthorID:    op.AuthorID.String(),
		DownloadURL: op.DownloadURL,
		PageCount:   op.PageCount,
	}
	var cluster clusterRecord
	if op.Cluster != "" {
		if err := c.http.getJSON(ctx, op.Cluster, c.header(), &cluster); err != nil {
			c.logger.Warn("courtlistener: cluster fetch failed, degrading metadata",
				"opinion_id", id, "error", err)
		} else {
			meta.CaseName = cluster.CaseName
			meta.CaseNameShort = cluster.CaseNameShort
			meta.DocketNumber = cluster.DocketNumber
			meta.Citations = cluster.Citations
			meta.DateFiled = cluster.DateFiled
			meta.ArguedDate = cluster.DateArgued
			meta.DecidedDate = cluster.DateFiled
			meta.VoteMajority = cluster.ScdbVotesMajority
			meta.VoteMinority = cluster.ScdbVotesMinority
		}
	}

	text, err := c.opinionText(ctx, &op)
	if err != nil {
		return nil, fmt.Errorf("extracting text for opinion %s: %w", id, err)
	}

	date := cluster.DateFiled
	if date == "" {
		date = datePart(op.DateCreated)
	}
	docURL := op.DownloadURL
	if cluster.AbsoluteURL != "" {
		docURL = courtListenerWebURL + cluster.AbsoluteURL
	}

	return &document.Document{
		ID:     id,
		Title:  cluster.CaseName,
		Date:   date,
		Type:   document.TypeOpinion,
		Source: "CourtListener",
		URL:    docURL,
		Text:   text,
		Meta:   meta,
	}, nil
}

// opinionText applies the text preference order: plain text, then reduced
// HTML, then PDF extraction.
func (c *CourtListener) opinionText(ctx context.Context, op *opinionRecord) (string, error) {
	if strings.TrimSpace(op.PlainText) != "" {
		return op.PlainText, nil
	}
	if strings.TrimSpace(op.HTMLWithCitations) != "" {
		return htmlToText(op.HTMLWithCitations), nil
	}
	if op.DownloadURL != "" {
		c.logger.Info("courtlistener: falling back to PDF extraction",
			"opinion_id", op.ID, "url", op.DownloadURL)
		data, err := c.http.get(ctx, op.DownloadURL, nil)
		if err != nil {
			return "", fmt.Errorf("downloading PDF: %w", err)
		}
		return extractPDFText(data)
	}
	return "", nil
}

// datePart reduces an ISO timestamp to its date.
func datePart(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
