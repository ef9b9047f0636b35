package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

func newTestLimiter() *RateLimiter {
	return NewRateLimiter(1000, 100000, &fakeClock{now: time.Now()})
}

func TestClient_FetchPage(t *testing.T) {
	var gotQuery, gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("$filter")
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("$top") != "100" || r.URL.Query().Get("$skip") != "100" {
			t.Errorf("unexpected paging %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"value":[{"ListingId":"A1"},{"ListingId":"A2"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", srv.Client(), newTestLimiter())
	c.SetStatuses([]models.StandardStatus{models.StatusActive, models.StatusClosed})

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := c.FetchPage(context.Background(), ResourceProperty, since, 100, 100)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(page.Records) != 2 || page.Offset != 100 {
		t.Fatalf("unexpected page %+v", page)
	}
	var rec struct{ ListingId string }
	if err := json.Unmarshal(page.Records[1], &rec); err != nil || rec.ListingId != "A2" {
		t.Fatalf("unexpected record %s", page.Records[1])
	}
	if gotPath != "/Property" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "ModificationTimestamp gt 2024-01-01T00:00:00Z") ||
		!strings.Contains(gotQuery, "StandardStatus eq 'Closed'") {
		t.Fatalf("unexpected filter %q", gotQuery)
	}
}

func TestClient_FetchMediaPage(t *testing.T) {
	var gotFilter, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFilter = r.URL.Query().Get("$filter")
		w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), newTestLimiter())
	page, err := c.FetchPage(context.Background(), ResourceMedia, time.Unix(0, 0), 100, 0)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(page.Records) != 0 {
		t.Fatalf("expected empty page")
	}
	if gotPath != "/Media" || gotFilter != "ModificationTimestamp gt 1970-01-01T00:00:00Z" {
		t.Fatalf("unexpected request %s %q", gotPath, gotFilter)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrAuthentication},
		{http.StatusTooManyRequests, ErrRateLimitExceeded},
		{http.StatusBadGateway, ErrTransient},
		{http.StatusServiceUnavailable, ErrTransient},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte("nope"))
		}))
		c := NewClient(srv.URL, "", srv.Client(), newTestLimiter())
		_, err := c.FetchPage(context.Background(), ResourceProperty, time.Time{}, 10, 0)
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", &http.Client{Timeout: time.Second}, newTestLimiter())
	_, err := c.FetchPage(context.Background(), ResourceProperty, time.Time{}, 10, 0)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestClient_HourCapStopsBeforeRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), NewRateLimiter(10, 1, &fakeClock{now: time.Now()}))
	ctx := context.Background()
	if _, err := c.FetchPage(ctx, ResourceProperty, time.Time{}, 10, 0); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if _, err := c.FetchPage(ctx, ResourceProperty, time.Time{}, 10, 0); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}
}

func TestSearchClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/listings" || q.Get("city") != "Austin" || q.Get("pageNum") != "2" || q.Get("minPrice") != "250000" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if r.Header.Get("X-API-Key") != "k" {
			t.Errorf("missing api key")
		}
		w.Write([]byte(`[{"listingId":"S1"},{"listingId":"S2"},{"listingId":"S3"}]`))
	}))
	defer srv.Close()

	c := NewSearchClient(srv.URL, "k", srv.Client(), newTestLimiter())
	got, err := c.Search(context.Background(), SearchQuery{Cities: []string{"Austin"}, MinPrice: 250000}, 2, 50)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(got))
	}
}
