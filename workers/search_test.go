package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/feed"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/services"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
)

type fakeSearcher struct {
	results map[string][]json.RawMessage
	err     map[string]error
	calls   []string
}

func (f *fakeSearcher) Search(ctx context.Context, q feed.SearchQuery, page, pageSize int) ([]json.RawMessage, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", q.Name, page))
	if err := f.err[q.Name]; err != nil {
		return nil, err
	}
	all := f.results[q.Name]
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func searchListing(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"listingId": "RS-%d",
		"status": "A",
		"listPrice": %d,
		"address": {"streetNumber": "%d", "streetName": "Elm", "streetSuffix": "Ave", "city": "Austin", "state": "TX", "zip": "78702"}
	}`, i, 400000+i, 10+i))
}

func newListingService(store *storage.MemoryStore) *services.ListingService {
	svc := services.NewListingService(store, nil)
	svc.SetClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) })
	return svc
}

func TestSearchWorker_RunOncePagesAndReconciles(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]json.RawMessage{}}
	for i := 0; i < 5; i++ {
		searcher.results["east"] = append(searcher.results["east"], searchListing(i))
	}
	searcher.results["east"] = append(searcher.results["east"], json.RawMessage(`{"status":"A"}`))

	store := storage.NewMemoryStore()
	w := NewSearchWorker(searcher, newListingService(store), []feed.SearchQuery{{Name: "east"}})
	w.SetPageSize(4)

	results := w.RunOnce(context.Background(), "")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Pages != 2 || res.Fetched != 6 {
		t.Fatalf("expected 2 pages / 6 fetched, got %d / %d", res.Pages, res.Fetched)
	}
	if res.Synced != 5 || len(res.Errors) != 1 {
		t.Fatalf("expected 5 synced and 1 error, got %d and %d", res.Synced, len(res.Errors))
	}
	if res.Errors[0].Kind != models.ErrKindTransform {
		t.Fatalf("expected transform error, got %s", res.Errors[0].Kind)
	}

	l, err := store.GetListingByIdentifier(context.Background(), models.SourceSearch, "RS-3")
	if err != nil || l == nil {
		t.Fatalf("listing RS-3 not stored: %v", err)
	}
	if l.PrimarySource != models.SourceSearch {
		t.Fatalf("unexpected primary source %s", l.PrimarySource)
	}

	again := w.RunOnce(context.Background(), "")
	if again[0].Synced != 0 {
		t.Fatalf("repeat pass synced %d", again[0].Synced)
	}
}

func TestSearchWorker_NamedSearchAndRateLimitStop(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]json.RawMessage{"b": {searchListing(1)}},
		err:     map[string]error{"a": feed.ErrRateLimitExceeded},
	}
	w := NewSearchWorker(searcher, newListingService(storage.NewMemoryStore()),
		[]feed.SearchQuery{{Name: "a"}, {Name: "b"}})

	named := w.RunOnce(context.Background(), "b")
	if len(named) != 1 || named[0].Search != "b" || named[0].Synced != 1 {
		t.Fatalf("unexpected named result %+v", named)
	}

	searcher.calls = nil
	all := w.RunOnce(context.Background(), "")
	if len(all) != 1 {
		t.Fatalf("expected stop after rate limit, got %d results", len(all))
	}
	if len(searcher.calls) != 1 || searcher.calls[0] != "a:1" {
		t.Fatalf("unexpected calls %v", searcher.calls)
	}
}

func TestSearchWorker_TriggerDoesNotBlock(t *testing.T) {
	w := NewSearchWorker(&fakeSearcher{}, newListingService(storage.NewMemoryStore()), nil)
	w.Trigger()
	w.Trigger()
	w.TriggerSearch("x")
	if got := <-w.triggerCh; got != "" {
		t.Fatalf("expected first queued trigger to run all searches, got %q", got)
	}
}

type sinkEntry struct {
	runID, scope, message string
	level                 models.LogLevel
}

type memorySink struct{ entries []sinkEntry }

func (s *memorySink) Log(runID string, level models.LogLevel, scope, message string) error {
	s.entries = append(s.entries, sinkEntry{runID, scope, message, level})
	return nil
}

func TestSinkLogger_TagsRun(t *testing.T) {
	sink := &memorySink{}
	logFn := NewSinkLogger(sink, func() string { return "run-7" })
	logFn(models.LogLevelWarn, "properties", "skipped record")

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.runID != "run-7" || e.level != models.LogLevelWarn || e.scope != "properties" {
		t.Fatalf("unexpected entry %+v", e)
	}
}
