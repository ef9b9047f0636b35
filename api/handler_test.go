package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/engine"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/services"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
	"github.com/gin-gonic/gin"
)

type stubRunner struct {
	running bool
	started chan struct{}
	last    *engine.RunReport
}

func (s *stubRunner) TryRun(ctx context.Context) (*engine.RunReport, error) {
	if s.started != nil {
		close(s.started)
	}
	return &engine.RunReport{}, nil
}

func (s *stubRunner) Running() bool              { return s.running }
func (s *stubRunner) LastRun() *engine.RunReport { return s.last }

func newTestRouter(t *testing.T, runner *stubRunner) (*gin.Engine, *services.ListingService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	svc := services.NewListingService(store, nil)
	svc.SetClock(func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) })
	h := NewHandler(context.Background(), store, store, svc, runner)
	return NewRouter(h), svc
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const dbListing = `{
	"id": "crm-77",
	"mls_number": "ACT2401001",
	"status": "Active",
	"price": 510000,
	"street_number": "123",
	"street_name": "Main Street",
	"city": "Austin",
	"state": "TX",
	"postal_code": "78704"
}`

func TestImportAndRead(t *testing.T) {
	r, _ := newTestRouter(t, &stubRunner{})

	w := do(r, http.MethodPost, "/listings/import", dbListing)
	if w.Code != http.StatusOK {
		t.Fatalf("import status %d: %s", w.Code, w.Body.String())
	}
	var imported struct {
		Total  int `json:"total"`
		Failed int `json:"failed"`
		Items  []struct {
			ID      string `json:"id"`
			Outcome string `json:"outcome"`
		} `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &imported); err != nil {
		t.Fatal(err)
	}
	if imported.Total != 1 || imported.Failed != 0 || imported.Items[0].Outcome != "created" {
		t.Fatalf("unexpected import response %s", w.Body.String())
	}
	id := imported.Items[0].ID

	w = do(r, http.MethodGet, "/listings/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}
	var l models.CanonicalListing
	if err := json.Unmarshal(w.Body.Bytes(), &l); err != nil {
		t.Fatal(err)
	}
	if l.RawPayloads != nil {
		t.Fatal("raw payloads should be hidden by default")
	}
	if l.Address.City != "Austin" {
		t.Fatalf("unexpected listing %+v", l)
	}

	w = do(r, http.MethodGet, "/listings/"+id+"?raw=true", "")
	l = models.CanonicalListing{}
	if err := json.Unmarshal(w.Body.Bytes(), &l); err != nil {
		t.Fatal(err)
	}
	if len(l.RawPayloads[models.SourceDatabase]) == 0 {
		t.Fatal("raw=true should include the source payload")
	}

	w = do(r, http.MethodGet, "/listings?source=database&identifier=crm-77", "")
	if w.Code != http.StatusOK {
		t.Fatalf("identifier lookup status %d", w.Code)
	}

	w = do(r, http.MethodGet, "/listings?address_key=123%7Cmain+st%7Caustin%7Ctx%7C78704", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":1`) {
		t.Fatalf("address lookup: %d %s", w.Code, w.Body.String())
	}
}

func TestLookupErrors(t *testing.T) {
	r, _ := newTestRouter(t, &stubRunner{})

	if w := do(r, http.MethodGet, "/listings/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/listings", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/listings?source=ZILLOW&identifier=1", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown source, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/listings/import", "nonsense"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/listings/import", `[{"status":"Active"}]`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when every record fails, got %d", w.Code)
	}
}

func TestSyncTriggerAndStatus(t *testing.T) {
	runner := &stubRunner{started: make(chan struct{})}
	r, _ := newTestRouter(t, runner)

	w := do(r, http.MethodPost, "/sync/trigger", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("sync was not started")
	}

	runner.running = true
	if w := do(r, http.MethodPost, "/sync/trigger", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/sync/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	var status struct {
		Running     bool                       `json:"running"`
		Checkpoints map[string]json.RawMessage `json:"checkpoints"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Running {
		t.Fatal("expected running=true")
	}
	if _, ok := status.Checkpoints["properties"]; !ok {
		t.Fatalf("missing properties checkpoint in %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"syncing":true`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}
