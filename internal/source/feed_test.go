package source

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestFeedFetchAllPages(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("since") != "2024-05-01" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		payload := map[string]any{
			"page":  page,
			"pages": 3,
			"items": []map[string]any{{"title": "job " + strconv.Itoa(page), "url": "https://x/" + strconv.Itoa(page), "source": "feed"}},
		}

		w.Header().Set("Content-Type", "application/json")
		if page == 1 {
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_ = json.NewEncoder(gz).Encode(payload)
			_ = gz.Close()
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	feed, err := NewFeed(server.URL+"/postings", FeedOptions{
		Token: "secret",
		Query: url.Values{"since": []string{"2024-05-01"}},
	})
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}

	records, err := feed.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, record := range records {
		if record["title"] != "job "+strconv.Itoa(i) {
			t.Fatalf("record %d out of order: %v", i, record["title"])
		}
	}
	if requests.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", requests.Load())
	}
}

func TestFeedBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	feed, err := NewFeed(server.URL, FeedOptions{})
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}

	if _, err := feed.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for bad status")
	}

	if _, err := NewFeed("not a url", FeedOptions{}); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
