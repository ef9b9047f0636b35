package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/feed"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/services"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/workers"
	"github.com/google/uuid"
)

const DefaultPageSize = 100

// ErrAlreadyRunning is returned by TryRun when a run is in flight.
var ErrAlreadyRunning = errors.New("sync already running")

// Fetcher is the feed read path. *feed.Client satisfies it.
type Fetcher interface {
	FetchPage(ctx context.Context, resource feed.Resource, since time.Time, limit, offset int) (*feed.RawPage, error)
}

// Archiver keeps a copy of each raw page. *storage.S3Archive satisfies it.
type Archiver interface {
	ArchivePage(ctx context.Context, runID string, page *feed.RawPage) error
}

// Engine runs incremental syncs from the replication feed into the
// canonical store. Only one run is in flight per Engine.
type Engine struct {
	fetcher     Fetcher
	listings    *services.ListingService
	checkpoints storage.CheckpointStore
	archiver    Archiver
	pageSize    int
	now         func() time.Time
	logFunc     workers.LogFunc

	running atomic.Bool

	mu      sync.RWMutex
	runID   string
	lastRun *RunReport
}

func New(fetcher Fetcher, listings *services.ListingService, checkpoints storage.CheckpointStore) *Engine {
	return &Engine{
		fetcher:     fetcher,
		listings:    listings,
		checkpoints: checkpoints,
		pageSize:    DefaultPageSize,
		now:         time.Now,
		logFunc:     workers.NoOpLogger,
	}
}

func (e *Engine) SetLogger(fn workers.LogFunc) {
	e.logFunc = fn
}

func (e *Engine) SetArchiver(a Archiver) {
	e.archiver = a
}

func (e *Engine) SetPageSize(n int) {
	if n > 0 {
		e.pageSize = n
	}
}

// SetClock overrides the time source used for run start and checkpoint times.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Running reports whether a run is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// CurrentRunID returns the id of the run in flight, or "".
func (e *Engine) CurrentRunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// LastRun returns the report of the most recent completed run, or nil.
func (e *Engine) LastRun() *RunReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// Run syncs properties and then media. A call made while another run is in
// flight returns a skipped report and no error. The returned error is the
// properties failure, if any; media failures are only reported.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	report, err := e.TryRun(ctx)
	if errors.Is(err, ErrAlreadyRunning) {
		e.logf(models.LogLevelWarn, "sync", "Warning: sync already running, skipping")
		return &RunReport{Skipped: true}, nil
	}
	return report, err
}

// TryRun is Run but reports an overlapping call as ErrAlreadyRunning.
func (e *Engine) TryRun(ctx context.Context) (*RunReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: e.now().UTC(),
	}
	e.mu.Lock()
	e.runID = report.RunID
	e.mu.Unlock()

	e.logf(models.LogLevelInfo, "sync", "Sync %s started", report.RunID)

	report.Properties, report.PropertiesErr = e.syncResource(ctx, report, models.SyncProperties)
	if report.PropertiesErr != nil {
		e.logf(models.LogLevelError, "properties", "Properties sync failed: %v", report.PropertiesErr)
	}

	report.Media, report.MediaErr = e.syncResource(ctx, report, models.SyncMedia)
	if report.MediaErr != nil {
		e.logf(models.LogLevelWarn, "media", "Warning: media sync failed: %v", report.MediaErr)
	}

	report.FinishedAt = e.now().UTC()
	e.logf(models.LogLevelInfo, "sync", "Sync %s finished: %s", report.RunID, report.Summary())

	e.mu.Lock()
	e.runID = ""
	e.lastRun = report
	e.mu.Unlock()

	return report, report.PropertiesErr
}

func resourceFor(syncType models.SyncType) feed.Resource {
	if syncType == models.SyncMedia {
		return feed.ResourceMedia
	}
	return feed.ResourceProperty
}

func wrapRecord(syncType models.SyncType, raw json.RawMessage) models.RawRecord {
	if syncType == models.SyncMedia {
		return models.MLSMediaRecord{Payload: raw}
	}
	return models.MLSPropertyRecord{Payload: raw}
}

// syncResource pages one resource from its watermark until a short page.
// The checkpoint is written twice: in_progress at the start and the terminal
// status at the end. The watermark only moves on success.
func (e *Engine) syncResource(ctx context.Context, run *RunReport, syncType models.SyncType) (*SyncReport, error) {
	prev, err := e.checkpoints.GetCheckpoint(ctx, syncType)
	if err != nil {
		return nil, fmt.Errorf("read %s checkpoint: %w", syncType, err)
	}
	if prev == nil {
		prev = &models.SyncCheckpoint{SyncType: syncType}
	}

	report := &SyncReport{
		SyncType: syncType,
		Since:    prev.Watermark(),
		Cursor:   NewCursor(e.pageSize),
	}

	inProgress := *prev
	inProgress.SyncType = syncType
	inProgress.LastSyncStatus = models.SyncStatusInProgress
	inProgress.LastSyncMessage = "run " + run.RunID
	inProgress.UpdatedAt = e.now().UTC()
	if err := e.checkpoints.SaveCheckpoint(ctx, &inProgress); err != nil {
		return report, fmt.Errorf("save %s checkpoint: %w", syncType, err)
	}

	e.logf(models.LogLevelInfo, string(syncType), "Syncing %s modified since %s", syncType, report.Since.Format(time.RFC3339))

	if err := e.sweep(ctx, run.RunID, report); err != nil {
		failed := *prev
		failed.SyncType = syncType
		failed.LastSyncStatus = models.SyncStatusError
		failed.LastSyncMessage = err.Error()
		failed.RecordsFailed = len(report.Errors)
		failed.UpdatedAt = e.now().UTC()
		// The run's own context may be the reason for failing.
		if saveErr := e.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), &failed); saveErr != nil {
			log.Printf("Warning: save %s checkpoint after failure: %v", syncType, saveErr)
		}
		return report, err
	}

	watermark, held := nextWatermark(run, prev, report)
	message := report.Summary()
	if held != "" {
		message += "; watermark " + held
		e.logf(models.LogLevelWarn, string(syncType), "Holding %s watermark: %s", syncType, held)
	}
	done := models.SyncCheckpoint{
		SyncType:          syncType,
		LastSyncTimestamp: watermark,
		LastSyncStatus:    models.SyncStatusSuccess,
		LastSyncMessage:   message,
		RecordsSynced:     report.Synced,
		RecordsFailed:     len(report.Errors),
		UpdatedAt:         e.now().UTC(),
	}
	if err := e.checkpoints.SaveCheckpoint(ctx, &done); err != nil {
		return report, fmt.Errorf("save %s checkpoint: %w", syncType, err)
	}

	e.logf(models.LogLevelInfo, string(syncType), "Synced %s: %s", syncType, report.Summary())
	return report, nil
}

// nextWatermark picks the watermark saved after a successful sweep. It is
// normally the run's start. Media is the exception: when the properties sync
// failed or media arrived before its listing, the watermark must not pass
// those records or the next run would never fetch them again.
func nextWatermark(run *RunReport, prev *models.SyncCheckpoint, report *SyncReport) (*time.Time, string) {
	watermark := run.StartedAt
	if report.SyncType != models.SyncMedia {
		return &watermark, ""
	}
	if run.PropertiesErr != nil {
		return prev.LastSyncTimestamp, "held because properties sync failed"
	}

	held := ""
	for _, re := range report.Errors {
		if re.Kind != models.ErrKindOrphan {
			continue
		}
		if re.ModifiedAt == nil {
			return prev.LastSyncTimestamp, "held for orphaned media without a timestamp"
		}
		// The feed filter is strictly greater than, at second precision.
		floor := re.ModifiedAt.UTC().Truncate(time.Second).Add(-time.Second)
		if floor.Before(watermark) {
			watermark = floor
			held = "capped before orphaned media " + re.NativeID
		}
	}
	if prev.LastSyncTimestamp != nil && watermark.Before(*prev.LastSyncTimestamp) {
		return prev.LastSyncTimestamp, "held before orphaned media"
	}
	return &watermark, held
}

// sweep fetches pages until the cursor is exhausted. Any fetch error is
// fatal; per-record errors are collected into the report.
func (e *Engine) sweep(ctx context.Context, runID string, report *SyncReport) error {
	resource := resourceFor(report.SyncType)
	cursor := &report.Cursor

	for !cursor.Exhausted {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := e.fetcher.FetchPage(ctx, resource, report.Since, cursor.Limit, cursor.Offset)
		if err != nil {
			return fmt.Errorf("fetch %s page at offset %d: %w", resource, cursor.Offset, err)
		}
		report.Pages++
		report.Fetched += len(page.Records)

		if e.archiver != nil {
			if err := e.archiver.ArchivePage(ctx, runID, page); err != nil {
				log.Printf("Warning: archive %s page %d: %v", resource, cursor.Offset, err)
			}
		}

		for _, raw := range page.Records {
			e.processRecord(ctx, report, wrapRecord(report.SyncType, raw))
		}

		cursor.Advance(len(page.Records))
	}
	return nil
}

func (e *Engine) processRecord(ctx context.Context, report *SyncReport, rec models.RawRecord) {
	result, err := e.listings.Process(ctx, rec)
	if err != nil {
		var recErr *models.RecordError
		if !errors.As(err, &recErr) {
			recErr = &models.RecordError{Kind: models.ErrKindPersistence, Source: rec.Source(), Err: err}
		}
		report.Errors = append(report.Errors, *recErr)
		e.logf(models.LogLevelWarn, string(report.SyncType), "Warning: skipped record: %v", recErr)
		return
	}

	switch result.Outcome {
	case services.OutcomeCreated:
		report.Created++
		report.Synced++
	case services.OutcomeUpdated:
		report.Updated++
		report.Synced++
	default:
		report.Unchanged++
	}
}

func (e *Engine) logf(level models.LogLevel, scope, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Print(msg)
	e.logFunc(level, scope, msg)
}
