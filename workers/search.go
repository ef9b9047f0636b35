package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/feed"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/services"
)

const (
	defaultSearchPageSize = 50
	maxSearchPages        = 20
)

// Searcher is the search API read path. *feed.SearchClient satisfies it.
type Searcher interface {
	Search(ctx context.Context, q feed.SearchQuery, page, pageSize int) ([]json.RawMessage, error)
}

// Processor reconciles one record. *services.ListingService satisfies it.
type Processor interface {
	Process(ctx context.Context, rec models.RawRecord) (*services.ProcessResult, error)
}

// SearchResult is the outcome of one saved search.
type SearchResult struct {
	Search  string
	Pages   int
	Fetched int
	Synced  int
	Errors  []models.RecordError
	Err     error
}

// SearchWorker pulls saved searches from the real-time search API and feeds
// the results through the same reconciliation as the replication feed.
type SearchWorker struct {
	client    Searcher
	listings  Processor
	searches  []feed.SearchQuery
	pageSize  int
	triggerCh chan string
	logFunc   LogFunc

	mu sync.Mutex // one pass at a time
}

func NewSearchWorker(client Searcher, listings Processor, searches []feed.SearchQuery) *SearchWorker {
	return &SearchWorker{
		client:    client,
		listings:  listings,
		searches:  searches,
		pageSize:  defaultSearchPageSize,
		triggerCh: make(chan string, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *SearchWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

func (w *SearchWorker) SetPageSize(n int) {
	if n > 0 {
		w.pageSize = n
	}
}

// Trigger causes the worker to run all saved searches immediately
func (w *SearchWorker) Trigger() {
	w.TriggerSearch("")
}

// TriggerSearch queues one named search, or all of them when name is empty.
func (w *SearchWorker) TriggerSearch(name string) {
	select {
	case w.triggerCh <- name:
	default:
	}
}

// Run starts the search worker loop
func (w *SearchWorker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Search worker stopping")
			return
		case <-tick:
			w.RunOnce(ctx, "")
		case name := <-w.triggerCh:
			w.RunOnce(ctx, name)
		}
	}
}

// RunOnce runs the named saved search, or every saved search when name is
// empty. A fatal error on one search does not stop the others.
func (w *SearchWorker) RunOnce(ctx context.Context, name string) []SearchResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	var results []SearchResult
	for _, q := range w.searches {
		if name != "" && q.Name != name {
			continue
		}
		res := w.runSearch(ctx, q)
		if res.Err != nil {
			w.logf(models.LogLevelError, "Search %s failed: %v", q.Name, res.Err)
		} else {
			w.logf(models.LogLevelInfo, "Search %s: %d pages, %d fetched, %d synced, %d failed",
				q.Name, res.Pages, res.Fetched, res.Synced, len(res.Errors))
		}
		results = append(results, res)

		// The hourly budget is shared; no point trying the rest.
		if errors.Is(res.Err, feed.ErrRateLimitExceeded) {
			break
		}
	}
	if name != "" && len(results) == 0 {
		w.logf(models.LogLevelWarn, "Warning: no saved search named %q", name)
	}
	return results
}

func (w *SearchWorker) runSearch(ctx context.Context, q feed.SearchQuery) SearchResult {
	res := SearchResult{Search: q.Name}

	for page := 1; page <= maxSearchPages; page++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		records, err := w.client.Search(ctx, q, page, w.pageSize)
		if err != nil {
			res.Err = fmt.Errorf("page %d: %w", page, err)
			return res
		}
		res.Pages++
		res.Fetched += len(records)

		for _, raw := range records {
			result, err := w.listings.Process(ctx, models.SearchRecord{Payload: raw})
			if err != nil {
				var recErr *models.RecordError
				if errors.As(err, &recErr) {
					res.Errors = append(res.Errors, *recErr)
				} else {
					res.Errors = append(res.Errors, models.RecordError{Kind: models.ErrKindPersistence, Source: models.SourceSearch, Err: err})
				}
				log.Printf("Warning: search %s: %v", q.Name, err)
				continue
			}
			if result.Changed() {
				res.Synced++
			}
		}

		if len(records) < w.pageSize {
			break
		}
	}
	return res
}

func (w *SearchWorker) logf(level models.LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Print(msg)
	w.logFunc(level, "search", msg)
}
