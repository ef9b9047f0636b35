package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/identity"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
)

var errOrphanMedia = errors.New("no listing with this MLS number")

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// ProcessResult is the outcome of reconciling one record.
type ProcessResult struct {
	Listing *models.CanonicalListing
	Outcome Outcome
	// Score is the dedupe score against the matched listing, 0 when created.
	Score   float64
	Reasons []string
}

// Changed reports whether the store was written.
func (r *ProcessResult) Changed() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpdated
}

// ListingService reconciles incoming source records into canonical listings.
// This is idempotent: replaying a record that changes nothing writes nothing.
type ListingService struct {
	store  storage.ListingStore
	scorer *Scorer
	now    func() time.Time
}

func NewListingService(store storage.ListingStore, scorer *Scorer) *ListingService {
	if scorer == nil {
		scorer = NewScorer(DefaultDuplicateThreshold)
	}
	return &ListingService{
		store:  store,
		scorer: scorer,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for CreatedAt and LastUpdated.
func (s *ListingService) SetClock(now func() time.Time) {
	s.now = now
}

// Process transforms one raw record and reconciles it into the store.
// Failures come back as *models.RecordError.
func (s *ListingService) Process(ctx context.Context, rec models.RawRecord) (*ProcessResult, error) {
	if media, ok := rec.(models.MLSMediaRecord); ok {
		return s.processMedia(ctx, media)
	}

	incoming, err := Transform(rec)
	if err != nil {
		return nil, &models.RecordError{
			Kind:     models.ErrKindTransform,
			Source:   rec.Source(),
			NativeID: NativeID(rec),
			Err:      err,
		}
	}

	result, err := s.Reconcile(ctx, incoming)
	if err != nil {
		return nil, &models.RecordError{
			Kind:     models.ErrKindPersistence,
			Source:   rec.Source(),
			NativeID: NativeID(rec),
			Err:      err,
		}
	}
	return result, nil
}

// Reconcile merges an already transformed listing into the store.
func (s *ListingService) Reconcile(ctx context.Context, incoming *models.CanonicalListing) (*ProcessResult, error) {
	now := s.now().UTC()

	existing, score, reasons, err := s.findExisting(ctx, incoming)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	if existing == nil {
		created := incoming.Clone()
		id, err := identity.ListingID(created)
		if err != nil {
			return nil, err
		}
		created.ID = id
		if created.StandardStatus == "" {
			created.StandardStatus = models.StatusUnknown
		}
		created.CreatedAt = now
		created.LastUpdated = now
		if err := s.store.UpsertListing(ctx, created); err != nil {
			return nil, fmt.Errorf("upsert listing: %w", err)
		}
		return &ProcessResult{Listing: created, Outcome: OutcomeCreated}, nil
	}

	merged := mergeInto(existing, incoming)
	// The first payload a source delivered stays in its slot.
	for from, raw := range existing.RawPayloads {
		merged.RawPayloads[from] = append(json.RawMessage(nil), raw...)
	}

	result := &ProcessResult{Listing: existing, Outcome: OutcomeUnchanged, Score: score, Reasons: reasons}
	if sameListing(existing, merged) {
		return result, nil
	}

	merged.LastUpdated = now
	if err := s.store.UpsertListing(ctx, merged); err != nil {
		return nil, fmt.Errorf("upsert listing %s: %w", merged.ID, err)
	}
	result.Listing = merged
	result.Outcome = OutcomeUpdated
	return result, nil
}

// findExisting looks up by identifier, then by derived id, then by address
// key. Identifier hits are accepted even when the score is low; address
// candidates must clear the duplicate threshold.
func (s *ListingService) findExisting(ctx context.Context, incoming *models.CanonicalListing) (*models.CanonicalListing, float64, []string, error) {
	sources := make([]models.Source, 0, len(incoming.SourceIDs))
	for src := range incoming.SourceIDs {
		sources = append(sources, src)
	}
	models.SortSources(sources)

	for _, src := range sources {
		found, err := s.store.GetListingByIdentifier(ctx, src, incoming.SourceIDs[src])
		if err != nil {
			return nil, 0, nil, err
		}
		if found != nil {
			return s.checked(found, incoming)
		}
	}

	if incoming.MLSNumber != "" && incoming.SourceIDs[models.SourceMLS] != incoming.MLSNumber {
		found, err := s.store.GetListingByIdentifier(ctx, models.SourceMLS, incoming.MLSNumber)
		if err != nil {
			return nil, 0, nil, err
		}
		if found != nil {
			return s.checked(found, incoming)
		}
	}

	if id, err := identity.ListingID(incoming); err == nil {
		found, err := s.store.GetListing(ctx, id)
		if err != nil {
			return nil, 0, nil, err
		}
		if found != nil {
			return s.checked(found, incoming)
		}
	}

	if incoming.AddressKey == "" {
		return nil, 0, nil, nil
	}
	candidates, err := s.store.GetListingsByAddressKey(ctx, incoming.AddressKey)
	if err != nil {
		return nil, 0, nil, err
	}

	var (
		best        *models.CanonicalListing
		bestScore   float64
		bestReasons []string
	)
	for i := range candidates {
		c := &candidates[i]
		score, reasons := s.scorer.Score(c, incoming)
		if score > bestScore {
			best, bestScore, bestReasons = c, score, reasons
		}
	}
	if best == nil || !s.scorer.IsDuplicate(bestScore) {
		return nil, 0, nil, nil
	}
	return best, bestScore, bestReasons, nil
}

func (s *ListingService) checked(found, incoming *models.CanonicalListing) (*models.CanonicalListing, float64, []string, error) {
	score, reasons := s.scorer.Score(found, incoming)
	if !s.scorer.IsDuplicate(score) {
		log.Printf("Warning: identifier match %s scored %.2f %v, merging anyway", found.ID, score, reasons)
	}
	return found, score, reasons, nil
}

// mergeInto applies incoming to existing. The incoming side wins conflicts
// only when its source ranks at or above the listing's current primary.
func mergeInto(existing, incoming *models.CanonicalListing) *models.CanonicalListing {
	var merged *models.CanonicalListing
	if incoming.PrimarySource.Priority() >= existing.PrimarySource.Priority() {
		merged = Merge(incoming, existing)
	} else {
		merged = Merge(existing, incoming)
	}
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.LastUpdated = existing.LastUpdated
	return merged
}

// sameListing compares the stored form of two listings, ignoring LastUpdated.
// Raw payloads compare by content: stores such as Postgres JSONB hand them
// back with keys reordered and whitespace added.
func sameListing(a, b *models.CanonicalListing) bool {
	ac, bc := *a, *b
	ac.LastUpdated, bc.LastUpdated = time.Time{}, time.Time{}
	ac.RawPayloads, bc.RawPayloads = canonicalRaw(a.RawPayloads), canonicalRaw(b.RawPayloads)
	ab, err := json.Marshal(&ac)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(&bc)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func canonicalRaw(payloads map[models.Source]json.RawMessage) map[models.Source]json.RawMessage {
	if payloads == nil {
		return nil
	}
	out := make(map[models.Source]json.RawMessage, len(payloads))
	for src, raw := range payloads {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			out[src] = raw
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[src] = raw
			continue
		}
		out[src] = b
	}
	return out
}

// AttachMedia unions a media URL into the photos of the listing it belongs to,
// placed by the media record's Order.
func (s *ListingService) AttachMedia(ctx context.Context, item *models.MediaItem) (*ProcessResult, error) {
	listing, err := s.store.GetListingByIdentifier(ctx, models.SourceMLS, item.MLSNumber)
	if err != nil {
		return nil, fmt.Errorf("lookup listing %s: %w", item.MLSNumber, err)
	}
	if listing == nil {
		return nil, errOrphanMedia
	}

	known := false
	for _, url := range listing.Photos {
		if url == item.URL {
			known = true
			break
		}
	}
	if pos, ok := listing.PhotoOrder[item.URL]; known && ok && pos == item.Order {
		return &ProcessResult{Listing: listing, Outcome: OutcomeUnchanged}, nil
	}

	updated := listing.Clone()
	if !known {
		updated.Photos = append(updated.Photos, item.URL)
	}
	if updated.PhotoOrder == nil {
		updated.PhotoOrder = make(map[string]int)
	}
	updated.PhotoOrder[item.URL] = item.Order
	updated.SortPhotos()
	updated.LastUpdated = s.now().UTC()
	if err := s.store.UpsertListing(ctx, updated); err != nil {
		return nil, fmt.Errorf("upsert listing %s: %w", updated.ID, err)
	}
	return &ProcessResult{Listing: updated, Outcome: OutcomeUpdated}, nil
}

func (s *ListingService) processMedia(ctx context.Context, rec models.MLSMediaRecord) (*ProcessResult, error) {
	item, err := TransformMedia(rec)
	if err != nil {
		return nil, &models.RecordError{
			Kind:     models.ErrKindTransform,
			Source:   models.SourceMLS,
			NativeID: NativeID(rec),
			Err:      err,
		}
	}

	result, err := s.AttachMedia(ctx, item)
	if errors.Is(err, errOrphanMedia) {
		return nil, &models.RecordError{
			Kind:       models.ErrKindOrphan,
			Source:     models.SourceMLS,
			NativeID:   firstNonEmpty(item.Key, item.MLSNumber),
			ModifiedAt: item.ModifiedAt,
			Err:        fmt.Errorf("%w: %s", err, item.MLSNumber),
		}
	}
	if err != nil {
		return nil, &models.RecordError{
			Kind:     models.ErrKindPersistence,
			Source:   models.SourceMLS,
			NativeID: firstNonEmpty(item.Key, item.MLSNumber),
			Err:      err,
		}
	}
	return result, nil
}

// GetListing returns the listing with the given id.
func (s *ListingService) GetListing(ctx context.Context, id string) (*models.CanonicalListing, error) {
	return s.store.GetListing(ctx, id)
}
