package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publiclaw/reporter/document"
)

// newTestCourtListener removes request spacing so tests against local
// servers run fast.
func newTestCourtListener(token, base string) *CourtListener {
	c := NewCourtListener(token, WithCourtListenerBaseURL(base))
	c.http.limiter = newLimiter(0)
	return c
}

func TestCourtListenerListIDsFollowsPagination(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/opinions/", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		q := r.URL.Query()
		assert.Equal(t, "scotus", q.Get("cluster__docket__court"))
		assert.Equal(t, "date_created", q.Get("order_by"))
		assert.Equal(t, "2024-01-01", q.Get("date_created__gte"))
		assert.Equal(t, "2024-06-30", q.Get("date_created__lte"))

		page := q.Get("page")
		if page == "2" {
			fmt.Fprint(w, `{"count": 3, "next": null, "results": [{"id": 303}]}`)
			return
		}
		fmt.Fprintf(w, `{"count": 3, "next": %q, "results": [{"id": 101}, {"id": 202}]}`,
			server.URL+"/opinions/?page=2")
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := newTestCourtListener("tok-123", server.URL)

	var ids []string
	for id, err := range c.ListIDs(context.Background(), "2024-01-01", "2024-06-30") {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"101", "202", "303"}, ids)
	assert.Equal(t, "Token tok-123", gotAuth)
}

func TestCourtListenerListIDsEarlyStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": 2, "next": "should-not-be-fetched", "results": [{"id": 1}, {"id": 2}]}`)
	}))
	defer server.Close()

	c := newTestCourtListener("", server.URL)
	var ids []string
	for id, err := range c.ListIDs(context.Background(), "", "") {
		require.NoError(t, err)
		ids = append(ids, id)
		break
	}
	assert.Equal(t, []string{"1"}, ids)
}

func TestCourtListenerFetchJoinsCluster(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/opinions/9999/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":           9999,
			"cluster":      server.URL + "/clusters/555/",
			"date_created": "2024-03-16T10:00:00Z",
			"plain_text":   "Held: the judgment is affirmed.",
			"download_url": "https://example.com/op.pdf",
			"author_id":    2738,
			"page_count":   31,
		})
	})
	mux.HandleFunc("/clusters/555/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"case_name":       "Smith v. Jones",
			"case_name_short": "Smith",
			"docket_number":   "22-915",
			"date_filed":      "2024-03-15",
			"date_argued":     "2023-11-06",
			"citations": []map[string]any{
				{"volume": 601, "reporter": "U.S.", "page": "416", "type": 1},
			},
			"scdb_votes_majority": 6,
			"scdb_votes_minority": 3,
			"absolute_url":        "/opinion/9999/smith-v-jones/",
		})
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := newTestCourtListener("tok", server.URL)
	doc, err := c.Fetch(context.Background(), "9999")
	require.NoError(t, err)

	assert.Equal(t, "9999", doc.ID)
	assert.Equal(t, "Smith v. Jones", doc.Title)
	assert.Equal(t, "2024-03-15", doc.Date)
	assert.Equal(t, document.TypeOpinion, doc.Type)
	assert.Equal(t, "CourtListener", doc.Source)
	assert.Equal(t, "Held: the judgment is affirmed.", doc.Text)
	assert.Equal(t, courtListenerWebURL+"/opinion/9999/smith-v-jones/", doc.URL)

	meta, ok := doc.Meta.(document.OpinionMeta)
	require.True(t, ok)
	assert.Equal(t, "Smith v. Jones", meta.CaseName)
	assert.Equal(t, "22-915", meta.DocketNumber)
	assert.Equal(t, 6, meta.VoteMajority)
	assert.Equal(t, 3, meta.VoteMinority)
	assert.Equal(t, "2738", meta.AuthorID)
	assert.Equal(t, "601 U.S. 416 (2024)", document.FormatBluebook(meta.Citations, meta.DateFiled))
}

func TestCourtListenerFetchClusterFailureDegrades(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/opinions/7/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":           7,
			"cluster":      server.URL + "/clusters/8/",
			"date_created": "2024-01-02T08:00:00Z",
			"plain_text":   "Per curiam.",
		})
	})
	mux.HandleFunc("/clusters/8/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c := newTestCourtListener("tok", server.URL)
	doc, err := c.Fetch(context.Background(), "7")
	require.NoError(t, err, "cluster failure must degrade, not fail the document")

	assert.Equal(t, "Per curiam.", doc.Text)
	assert.Equal(t, "2024-01-02", doc.Date, "date falls back to the opinion creation date")
	meta, ok := doc.Meta.(document.OpinionMeta)
	require.True(t, ok)
	assert.Empty(t, meta.CaseName)
}

func TestCourtListenerFetchHTMLFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/opinions/42/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":                  42,
			"plain_text":          "",
			"html_with_citations": `<p>The judgment is <em>affirmed</em>.</p><p>See 42 U.S.C. &sect; 1983.</p>`,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestCourtListener("tok", server.URL)
	doc, err := c.Fetch(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "The judgment is affirmed.\n\nSee 42 U.S.C. § 1983.", doc.Text)
}

func TestCourtListenerFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestCourtListener("tok", server.URL)
	_, err := c.Fetch(context.Background(), "404404")
	require.ErrorIs(t, err, ErrNotFound)
}
