package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
)

func loadFixture(t *testing.T, name string) json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func newTestService(store storage.ListingStore) *ListingService {
	svc := NewListingService(store, NewScorer(0.85))
	svc.SetClock(func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func TestTransform_MLSProperty(t *testing.T) {
	l, err := Transform(models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")})
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if l.MLSNumber != "ACT2401001" || l.SourceIDs[models.SourceMLS] != "ACT2401001" {
		t.Fatalf("unexpected identifiers %q %v", l.MLSNumber, l.SourceIDs)
	}
	if l.StandardStatus != models.StatusActive {
		t.Fatalf("expected Active, got %s", l.StandardStatus)
	}
	if l.AddressKey != "123|main st|austin|tx|78704" {
		t.Fatalf("unexpected address key %q", l.AddressKey)
	}
	if l.Description != "Charming mid-century home. Walk to SoCo." {
		t.Fatalf("unexpected description %q", l.Description)
	}
	if l.ListDate == nil || l.ListDate.Format("2006-01-02") != "2024-01-05" {
		t.Fatalf("unexpected list date %v", l.ListDate)
	}
	if l.PrimarySource != models.SourceMLS || len(l.RawPayloads[models.SourceMLS]) == 0 {
		t.Fatalf("expected MLS raw payload retained")
	}
}

func TestTransform_SearchListing(t *testing.T) {
	l, err := Transform(models.SearchRecord{Payload: loadFixture(t, "search_listing.json")})
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if l.StandardStatus != models.StatusActiveUnderContract {
		t.Fatalf("expected Active Under Contract, got %s", l.StandardStatus)
	}
	if l.AddressKey != "123|main st|austin|tx|78704" {
		t.Fatalf("unexpected address key %q", l.AddressKey)
	}
	if len(l.Photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(l.Photos))
	}
}

func TestTransform_Malformed(t *testing.T) {
	tests := []struct {
		name string
		rec  models.RawRecord
	}{
		{"bad json", models.MLSPropertyRecord{Payload: json.RawMessage(`{"ListingId":`)}},
		{"wrong type", models.MLSPropertyRecord{Payload: json.RawMessage(`{"ListingId":"X1","ListPrice":"cheap"}`)}},
		{"no listing id", models.MLSPropertyRecord{Payload: json.RawMessage(`{"City":"Austin"}`)}},
		{"search without id", models.SearchRecord{Payload: json.RawMessage(`{"status":"A"}`)}},
		{"database without identity", models.DatabaseRecord{Payload: json.RawMessage(`{"city":"Austin"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Transform(tt.rec); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestProcess_CreateThenUnchanged(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	rec := models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")}

	res, err := svc.Process(ctx, rec)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Outcome != OutcomeCreated || res.Listing.ID != "mls-act2401001" {
		t.Fatalf("unexpected result %s %s", res.Outcome, res.Listing.ID)
	}

	before := store.Snapshot()
	res, err = svc.Process(ctx, rec)
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}
	if res.Outcome != OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %s", res.Outcome)
	}
	if store.Writes() != 1 {
		t.Fatalf("expected a single write, got %d", store.Writes())
	}
	after := store.Snapshot()
	if string(before[res.Listing.ID]) != string(after[res.Listing.ID]) {
		t.Fatalf("stored document changed on replay")
	}
}

func TestProcess_SearchRecordMergesByAddress(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Process(ctx, models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")}); err != nil {
		t.Fatalf("mls process failed: %v", err)
	}
	res, err := svc.Process(ctx, models.SearchRecord{Payload: loadFixture(t, "search_listing.json")})
	if err != nil {
		t.Fatalf("search process failed: %v", err)
	}
	if res.Outcome != OutcomeUpdated {
		t.Fatalf("expected update of existing listing, got %s (score %.2f %v)", res.Outcome, res.Score, res.Reasons)
	}

	l := res.Listing
	if l.ID != "mls-act2401001" {
		t.Fatalf("expected id to be kept, got %s", l.ID)
	}
	if l.PrimarySource != models.SourceMLS {
		t.Fatalf("expected MLS to stay primary, got %s", l.PrimarySource)
	}
	if *l.Beds != 3 {
		t.Fatalf("expected MLS beds to win, got %d", *l.Beds)
	}
	if *l.ListPrice != 525000 {
		t.Fatalf("expected MLS price to win, got %.0f", *l.ListPrice)
	}
	if l.StandardStatus != models.StatusActive {
		t.Fatalf("expected MLS status to win, got %s", l.StandardStatus)
	}
	if l.SourceIDs[models.SourceSearch] != "RS-88812" || len(l.Photos) != 2 {
		t.Fatalf("expected search id and photos filled, got %v %v", l.SourceIDs, l.Photos)
	}
	if len(l.RawPayloads) != 2 {
		t.Fatalf("expected raw payloads from both sources, got %d", len(l.RawPayloads))
	}

	byID, err := store.GetListingByIdentifier(ctx, models.SourceSearch, "RS-88812")
	if err != nil || byID == nil || byID.ID != l.ID {
		t.Fatalf("expected lookup by search id to resolve, got %v %v", byID, err)
	}
}

func TestProcess_PrimarySourceOverwrites(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	first := json.RawMessage(`{"ListingId":"ACT9","StandardStatus":"Active","ListPrice":400000,"StreetNumber":"9","StreetName":"Oak Ave","City":"Austin","StateOrProvince":"TX","PostalCode":"78701"}`)
	closed := json.RawMessage(`{"ListingId":"ACT9","StandardStatus":"Closed","ClosePrice":410000,"StreetNumber":"9","StreetName":"Oak Ave","City":"Austin","StateOrProvince":"TX","PostalCode":"78701"}`)

	if _, err := svc.Process(ctx, models.MLSPropertyRecord{Payload: first}); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	res, err := svc.Process(ctx, models.MLSPropertyRecord{Payload: closed})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if res.Listing.StandardStatus != models.StatusClosed {
		t.Fatalf("expected Closed, got %s", res.Listing.StandardStatus)
	}
	if res.Listing.ListPrice == nil || *res.Listing.ListPrice != 400000 {
		t.Fatalf("expected list price kept, got %v", res.Listing.ListPrice)
	}
	if string(res.Listing.RawPayloads[models.SourceMLS]) != string(first) {
		t.Fatalf("expected the first MLS payload to stay in its slot, got %s", res.Listing.RawPayloads[models.SourceMLS])
	}
}

func TestProcess_DistinctListingsAtDifferentAddresses(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	a := json.RawMessage(`{"listingId":"S1","status":"A","listPrice":300000,"address":{"streetNumber":"1","streetName":"Oak Ave","city":"Austin","state":"TX","zip":"78701"}}`)
	b := json.RawMessage(`{"listingId":"S2","status":"A","listPrice":500000,"address":{"streetNumber":"77","streetName":"Elm St","city":"Austin","state":"TX","zip":"78702"}}`)

	ra, err := svc.Process(ctx, models.SearchRecord{Payload: a})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	rb, err := svc.Process(ctx, models.SearchRecord{Payload: b})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if ra.Listing.ID == rb.Listing.ID {
		t.Fatalf("expected two listings, both got %s", ra.Listing.ID)
	}
}

func TestProcess_RecordErrors(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Process(ctx, models.MLSPropertyRecord{Payload: json.RawMessage(`{"ListingId":"BAD1","ListPrice":"x"}`)})
	var recErr *models.RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected RecordError, got %v", err)
	}
	if recErr.Kind != models.ErrKindTransform || recErr.NativeID != "BAD1" {
		t.Fatalf("unexpected record error %+v", recErr)
	}

	_, err = svc.Process(ctx, models.MLSMediaRecord{Payload: json.RawMessage(`{"MediaKey":"m1","ResourceRecordID":"NOPE","MediaURL":"https://x/1.jpg"}`)})
	if !errors.As(err, &recErr) || recErr.Kind != models.ErrKindOrphan {
		t.Fatalf("expected orphan error, got %v", err)
	}
}

func TestAttachMedia(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Process(ctx, models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")}); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	media := models.MLSMediaRecord{Payload: json.RawMessage(`{"MediaKey":"m1","ResourceRecordID":"ACT2401001","MediaURL":"https://media.example.com/1.jpg","Order":1}`)}
	res, err := svc.Process(ctx, media)
	if err != nil {
		t.Fatalf("media failed: %v", err)
	}
	if res.Outcome != OutcomeUpdated || len(res.Listing.Photos) != 1 {
		t.Fatalf("expected photo attached, got %s %v", res.Outcome, res.Listing.Photos)
	}

	res, err = svc.Process(ctx, media)
	if err != nil {
		t.Fatalf("media replay failed: %v", err)
	}
	if res.Outcome != OutcomeUnchanged {
		t.Fatalf("expected unchanged on replay, got %s", res.Outcome)
	}
}

// jsonbStore hands listings back with raw payload keys sorted and spaced,
// the way Postgres returns JSONB.
type jsonbStore struct {
	*storage.MemoryStore
}

func reshape(l *models.CanonicalListing) *models.CanonicalListing {
	if l == nil {
		return nil
	}
	for src, raw := range l.RawPayloads {
		var v map[string]interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		b, _ := json.MarshalIndent(v, "", " ")
		l.RawPayloads[src] = b
	}
	return l
}

func (s jsonbStore) GetListing(ctx context.Context, id string) (*models.CanonicalListing, error) {
	l, err := s.MemoryStore.GetListing(ctx, id)
	return reshape(l), err
}

func (s jsonbStore) GetListingByIdentifier(ctx context.Context, src models.Source, id string) (*models.CanonicalListing, error) {
	l, err := s.MemoryStore.GetListingByIdentifier(ctx, src, id)
	return reshape(l), err
}

func (s jsonbStore) GetListingsByAddressKey(ctx context.Context, key string) ([]models.CanonicalListing, error) {
	ls, err := s.MemoryStore.GetListingsByAddressKey(ctx, key)
	for i := range ls {
		reshape(&ls[i])
	}
	return ls, err
}

func TestProcess_ReorderedRawIsUnchanged(t *testing.T) {
	mem := storage.NewMemoryStore()
	svc := newTestService(jsonbStore{mem})
	ctx := context.Background()
	rec := models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")}

	want := []Outcome{OutcomeCreated, OutcomeUnchanged, OutcomeUnchanged}
	for i, w := range want {
		res, err := svc.Process(ctx, rec)
		if err != nil {
			t.Fatalf("pass %d: %v", i+1, err)
		}
		if res.Outcome != w {
			t.Fatalf("pass %d: expected %s, got %s", i+1, w, res.Outcome)
		}
	}
	if mem.Writes() != 1 {
		t.Fatalf("expected a single write, got %d", mem.Writes())
	}
}

func TestReconcile_KeepsFirstPayloadPerSource(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := Transform(models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")})
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if _, err := svc.Reconcile(ctx, first); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	original := string(first.RawPayloads[models.SourceMLS])

	later := first.Clone()
	later.StandardStatus = models.StatusPending
	later.RawPayloads[models.SourceMLS] = json.RawMessage(`{"ListingId":"ACT2401001","StandardStatus":"Pending"}`)
	res, err := svc.Reconcile(ctx, later)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if res.Outcome != OutcomeUpdated || res.Listing.StandardStatus != models.StatusPending {
		t.Fatalf("expected status update, got %s %s", res.Outcome, res.Listing.StandardStatus)
	}

	stored, _ := store.GetListing(ctx, res.Listing.ID)
	if got := string(stored.RawPayloads[models.SourceMLS]); got != original {
		t.Fatalf("MLS payload overwritten: %s", got)
	}
}

func TestAttachMedia_OrdersByFeedPosition(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Process(ctx, models.MLSPropertyRecord{Payload: loadFixture(t, "mls_property.json")}); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// Feed order is newest modification first, not display order.
	for _, raw := range []string{
		`{"MediaKey":"m3","ResourceRecordID":"ACT2401001","MediaURL":"https://media.example.com/3.jpg","Order":3}`,
		`{"MediaKey":"m1","ResourceRecordID":"ACT2401001","MediaURL":"https://media.example.com/1.jpg","Order":1}`,
		`{"MediaKey":"m2","ResourceRecordID":"ACT2401001","MediaURL":"https://media.example.com/2.jpg","Order":2}`,
	} {
		if _, err := svc.Process(ctx, models.MLSMediaRecord{Payload: json.RawMessage(raw)}); err != nil {
			t.Fatalf("media failed: %v", err)
		}
	}

	l, _ := store.GetListing(ctx, "mls-act2401001")
	want := []string{
		"https://media.example.com/1.jpg",
		"https://media.example.com/2.jpg",
		"https://media.example.com/3.jpg",
	}
	if len(l.Photos) != len(want) {
		t.Fatalf("expected %v, got %v", want, l.Photos)
	}
	for i := range want {
		if l.Photos[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, l.Photos)
		}
	}

	// Moving a photo re-sorts; replaying the same position does not write.
	writes := store.Writes()
	moved := models.MLSMediaRecord{Payload: json.RawMessage(`{"MediaKey":"m3","ResourceRecordID":"ACT2401001","MediaURL":"https://media.example.com/3.jpg","Order":0}`)}
	res, err := svc.Process(ctx, moved)
	if err != nil {
		t.Fatalf("media failed: %v", err)
	}
	if res.Outcome != OutcomeUpdated || res.Listing.Photos[0] != "https://media.example.com/3.jpg" {
		t.Fatalf("expected 3.jpg first, got %s %v", res.Outcome, res.Listing.Photos)
	}
	if res, _ = svc.Process(ctx, moved); res.Outcome != OutcomeUnchanged || store.Writes() != writes+1 {
		t.Fatalf("expected replay to be unchanged, got %s with %d writes", res.Outcome, store.Writes()-writes)
	}
}

