package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publiclaw/reporter/document"
)

// newTestFederalRegister removes request spacing so tests against local
// servers run fast.
func newTestFederalRegister(base string) *FederalRegister {
	f := NewFederalRegister(WithFederalRegisterBaseURL(base))
	f.http.limiter = newLimiter(0)
	return f
}

func TestFederalRegisterListIDsWalksPages(t *testing.T) {
	var pagesSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "PRESDOCU", q.Get("conditions[type]"))
		assert.Equal(t, "executive_order", q.Get("conditions[presidential_document_type]"))
		assert.Equal(t, "2025-01-20", q.Get("conditions[signing_date][gte]"))
		assert.Equal(t, "2025-06-30", q.Get("conditions[signing_date][lte]"))
		assert.Equal(t, "oldest", q.Get("order"))
		assert.Equal(t, "100", q.Get("per_page"))

		page := q.Get("page")
		pagesSeen = append(pagesSeen, page)
		switch page {
		case "1":
			fmt.Fprint(w, `{"count": 3, "total_pages": 2, "results": [
				{"document_number": "2025-01000"}, {"document_number": "2025-01001"}]}`)
		default:
			fmt.Fprint(w, `{"count": 3, "total_pages": 2, "results": [
				{"document_number": "2025-01002"}]}`)
		}
	}))
	defer server.Close()

	f := newTestFederalRegister(server.URL)
	var ids []string
	for id, err := range f.ListIDs(context.Background(), "2025-01-20", "2025-06-30") {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"2025-01000", "2025-01001", "2025-01002"}, ids)
	assert.Equal(t, []string{"1", "2"}, pagesSeen)
}

func TestFederalRegisterListIDsPacesPageRequests(t *testing.T) {
	var arrivals []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrivals = append(arrivals, time.Now())
		fmt.Fprintf(w, `{"count": 3, "total_pages": 3, "results": [{"document_number": "2025-0%s00"}]}`,
			r.URL.Query().Get("page"))
	}))
	defer server.Close()

	f := NewFederalRegister(WithFederalRegisterBaseURL(server.URL))
	f.http.limiter = newLimiter(50 * time.Millisecond)

	var ids []string
	for id, err := range f.ListIDs(context.Background(), "", "") {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Equal(t, []string{"2025-0100", "2025-0200", "2025-0300"}, ids)
	require.Len(t, arrivals, 3)
	assert.GreaterOrEqual(t, arrivals[2].Sub(arrivals[0]), 100*time.Millisecond,
		"consecutive page requests stay spaced by the client interval")
}

func TestFederalRegisterFetch(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/documents/2025-01000", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"document_number":        "2025-01000",
			"title":                  "Strengthening the Electric Grid",
			"executive_order_number": "14300",
			"publication_date":       "2025-02-03",
			"signing_date":           "2025-01-30",
			"president":              map[string]any{"name": "John Example"},
			"citation":               "90 FR 9001",
			"html_url":               "https://www.federalregister.gov/d/2025-01000",
			"raw_text_url":           server.URL + "/raw/2025-01000",
		})
	})
	mux.HandleFunc("/raw/2025-01000", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><pre>Executive Order 14300

By the authority vested in me as President, it is hereby ordered:

Section 1. Policy. The grid &amp; its operators matter.
</pre></body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	f := newTestFederalRegister(server.URL)
	doc, err := f.Fetch(context.Background(), "2025-01000")
	require.NoError(t, err)

	assert.Equal(t, "2025-01000", doc.ID)
	assert.Equal(t, "Strengthening the Electric Grid", doc.Title)
	assert.Equal(t, "2025-01-30", doc.Date, "signing date wins over publication date")
	assert.Equal(t, document.TypeOrder, doc.Type)
	assert.Equal(t, "Federal Register", doc.Source)
	assert.Contains(t, doc.Text, "Section 1. Policy. The grid & its operators matter.")
	assert.NotContains(t, doc.Text, "<pre>")

	meta, ok := doc.Meta.(document.OrderMeta)
	require.True(t, ok)
	assert.Equal(t, "14300", meta.ExecutiveOrderNumber)
	assert.Equal(t, "John Example", meta.President)
	assert.Equal(t, "90 FR 9001", meta.Citation)
	assert.Equal(t, "2025-01000", meta.FederalRegisterNumber)
}

func TestFederalRegisterFetchNumericEONumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents/2025-02000", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"document_number": "2025-02000", "title": "T",
			"executive_order_number": 14301, "signing_date": "2025-03-01"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFederalRegister(server.URL)
	doc, err := f.Fetch(context.Background(), "2025-02000")
	require.NoError(t, err)
	meta := doc.Meta.(document.OrderMeta)
	assert.Equal(t, "14301", meta.ExecutiveOrderNumber)
	assert.Empty(t, doc.Text, "missing raw text degrades to an empty document")
}

func TestFederalRegisterRetriesServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"count": 0, "total_pages": 1, "results": []}`)
	}))
	defer server.Close()

	f := newTestFederalRegister(server.URL)
	for _, err := range f.ListIDs(context.Background(), "", "") {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestFederalRegisterClientErrorIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	f := newTestFederalRegister(server.URL)
	_, err := f.Fetch(context.Background(), "x")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 1, calls)
}
