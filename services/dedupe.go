package services

import (
	"math"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

const (
	weightMLSNumber  = 100.0
	weightSearchID   = 80.0
	weightAddressKey = 60.0
	weightPrice      = 20.0
	weightGeo        = 30.0

	// An exact identifier match is near-certain on its own; address noise
	// must not pull it under the duplicate threshold.
	mlsMatchFloor    = 0.95
	searchMatchFloor = 0.90

	DefaultDuplicateThreshold = 0.85
)

// Scorer rates how likely two listings describe the same property.
type Scorer struct {
	Threshold float64
}

func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDuplicateThreshold
	}
	return &Scorer{Threshold: threshold}
}

// Score returns a confidence in [0,1] and the evidence that matched. A rule
// only counts toward the denominator when both sides carry the field.
func (s *Scorer) Score(a, b *models.CanonicalListing) (float64, []string) {
	reasons := []string{}
	var earned, possible float64
	floor := 0.0

	if am, bm := mlsNumberOf(a), mlsNumberOf(b); am != "" && bm != "" {
		possible += weightMLSNumber
		if am == bm {
			earned += weightMLSNumber
			reasons = append(reasons, "same_mls_number")
			floor = mlsMatchFloor
		}
	}

	if as, bs := a.SourceIDs[models.SourceSearch], b.SourceIDs[models.SourceSearch]; as != "" && bs != "" {
		possible += weightSearchID
		if as == bs {
			earned += weightSearchID
			reasons = append(reasons, "same_search_id")
			floor = math.Max(floor, searchMatchFloor)
		}
	}

	if a.AddressKey != "" && b.AddressKey != "" {
		possible += weightAddressKey
		if a.AddressKey == b.AddressKey {
			earned += weightAddressKey
			reasons = append(reasons, "same_address_key")
		}
	}

	if a.ListPrice != nil && b.ListPrice != nil {
		possible += weightPrice
		switch diff := relativeDiff(*a.ListPrice, *b.ListPrice); {
		case diff <= 0.01:
			earned += weightPrice
			reasons = append(reasons, "price_within_1pct")
		case diff <= 0.05:
			earned += weightPrice / 2
			reasons = append(reasons, "price_within_5pct")
		}
	}

	if a.Latitude != nil && a.Longitude != nil && b.Latitude != nil && b.Longitude != nil {
		possible += weightGeo
		d := math.Max(math.Abs(*a.Latitude-*b.Latitude), math.Abs(*a.Longitude-*b.Longitude))
		switch {
		case d <= 0.001:
			earned += weightGeo
			reasons = append(reasons, "geo_within_100m")
		case d <= 0.005:
			earned += weightGeo / 2
			reasons = append(reasons, "geo_within_500m")
		}
	}

	if possible == 0 {
		return 0, reasons
	}
	return math.Max(earned/possible, floor), reasons
}

// IsDuplicate reports whether the score reaches the configured threshold.
func (s *Scorer) IsDuplicate(score float64) bool {
	return score >= s.Threshold
}

func mlsNumberOf(l *models.CanonicalListing) string {
	if l.MLSNumber != "" {
		return l.MLSNumber
	}
	return l.SourceIDs[models.SourceMLS]
}

func relativeDiff(a, b float64) float64 {
	maxVal := math.Max(math.Abs(a), math.Abs(b))
	if maxVal == 0 {
		return 0
	}
	return math.Abs(a-b) / maxVal
}
