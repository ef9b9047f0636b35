package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/engine"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/services"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
	"github.com/gin-gonic/gin"
)

const maxImportBytes = 10 << 20

// SyncRunner is the part of the engine the API drives.
type SyncRunner interface {
	TryRun(ctx context.Context) (*engine.RunReport, error)
	Running() bool
	LastRun() *engine.RunReport
}

// Handler serves canonical listings and sync status. Raw source payloads are
// only returned when asked for.
type Handler struct {
	store       storage.ListingStore
	checkpoints storage.CheckpointStore
	listings    *services.ListingService
	sync        SyncRunner
	// runCtx bounds syncs started over HTTP; it outlives the request.
	runCtx context.Context
}

func NewHandler(runCtx context.Context, store storage.ListingStore, checkpoints storage.CheckpointStore,
	listings *services.ListingService, sync SyncRunner) *Handler {
	return &Handler{
		store:       store,
		checkpoints: checkpoints,
		listings:    listings,
		sync:        sync,
		runCtx:      runCtx,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	listings := r.Group("/listings")
	listings.GET("", h.lookup)           // GET /listings?source=&identifier= | ?address_key=
	listings.GET("/:id", h.getByID)      // GET /listings/:id?raw=true
	listings.POST("/import", h.importDB) // POST /listings/import

	sync := r.Group("/sync")
	sync.GET("/status", h.status)
	sync.POST("/trigger", h.trigger)
}

// NewRouter builds a gin engine with the handler's routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"syncing": h.sync != nil && h.sync.Running(),
	})
}

func (h *Handler) getByID(c *gin.Context) {
	l, err := h.store.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if l == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, present(l, wantRaw(c)))
}

func (h *Handler) lookup(c *gin.Context) {
	ctx := c.Request.Context()
	raw := wantRaw(c)

	if key := c.Query("address_key"); key != "" {
		items, err := h.store.GetListingsByAddressKey(ctx, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		out := make([]*models.CanonicalListing, 0, len(items))
		for i := range items {
			out = append(out, present(&items[i], raw))
		}
		c.JSON(http.StatusOK, gin.H{"total": len(out), "items": out})
		return
	}

	source := models.Source(strings.ToUpper(c.Query("source")))
	identifier := c.Query("identifier")
	if identifier == "" || !source.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "need address_key, or source and identifier"})
		return
	}

	l, err := h.store.GetListingByIdentifier(ctx, source, identifier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if l == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, present(l, raw))
}

// importDB reconciles internally entered listings. The body is one listing
// object or an array of them.
func (h *Handler) importDB(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	var records []json.RawMessage
	trimmed := strings.TrimSpace(string(body))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(body, &records); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON array"})
			return
		}
	case strings.HasPrefix(trimmed, "{"):
		records = []json.RawMessage{json.RawMessage(trimmed)}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a listing object or array"})
		return
	}

	type itemResult struct {
		ID      string           `json:"id,omitempty"`
		Outcome services.Outcome `json:"outcome,omitempty"`
		Error   string           `json:"error,omitempty"`
	}
	results := make([]itemResult, 0, len(records))
	failed := 0
	for _, raw := range records {
		res, err := h.listings.Process(c.Request.Context(), models.DatabaseRecord{Payload: raw})
		if err != nil {
			failed++
			results = append(results, itemResult{Error: err.Error()})
			continue
		}
		results = append(results, itemResult{ID: res.Listing.ID, Outcome: res.Outcome})
	}

	status := http.StatusOK
	if failed == len(records) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"total": len(records), "failed": failed, "items": results})
}

func (h *Handler) status(c *gin.Context) {
	ctx := c.Request.Context()
	checkpoints := gin.H{}
	for _, st := range []models.SyncType{models.SyncProperties, models.SyncMedia} {
		cp, err := h.checkpoints.GetCheckpoint(ctx, st)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkpoint read failed"})
			return
		}
		checkpoints[string(st)] = cp
	}

	resp := gin.H{"checkpoints": checkpoints, "running": false}
	if h.sync != nil {
		resp["running"] = h.sync.Running()
		if last := h.sync.LastRun(); last != nil {
			resp["last_run"] = last
		}
	}
	c.JSON(http.StatusOK, resp)
}

// trigger starts a sync in the background. Callers poll /sync/status.
func (h *Handler) trigger(c *gin.Context) {
	if h.sync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync not configured"})
		return
	}
	if h.sync.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already running"})
		return
	}

	go func() {
		report, err := h.sync.TryRun(h.runCtx)
		if errors.Is(err, engine.ErrAlreadyRunning) {
			return
		}
		if err != nil {
			log.Printf("Triggered sync error: %v", err)
			return
		}
		log.Printf("Triggered sync: %s", report.Summary())
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func wantRaw(c *gin.Context) bool {
	v := strings.ToLower(c.Query("raw"))
	return v == "true" || v == "1"
}

func present(l *models.CanonicalListing, raw bool) *models.CanonicalListing {
	if raw {
		return l
	}
	return l.WithoutRaw()
}
