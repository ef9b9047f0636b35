package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/identity"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

var errMissingField = errors.New("missing required field")

// Transform decodes a raw source record into a partial canonical listing.
// Media records are not listings; use TransformMedia for those.
func Transform(rec models.RawRecord) (*models.CanonicalListing, error) {
	var (
		l   *models.CanonicalListing
		err error
	)
	switch r := rec.(type) {
	case models.MLSPropertyRecord:
		l, err = fromMLS(r.Payload)
	case models.SearchRecord:
		l, err = fromSearch(r.Payload)
	case models.DatabaseRecord:
		l, err = fromDatabase(r.Payload)
	case models.MLSMediaRecord:
		return nil, fmt.Errorf("media record is not a listing")
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
	if err != nil {
		return nil, err
	}

	src := rec.Source()
	l.Sources = []models.Source{src}
	l.PrimarySource = src
	l.AddressKey = identity.KeyFromAddress(l.Address)
	l.RawPayloads = map[models.Source]json.RawMessage{src: compactRaw(rec.Raw())}

	if _, err := identity.ListingID(l); err != nil {
		return nil, err
	}
	return l, nil
}

// TransformMedia decodes a feed media record.
func TransformMedia(rec models.MLSMediaRecord) (*models.MediaItem, error) {
	var m models.MLSMedia
	if err := json.Unmarshal(rec.Payload, &m); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	if m.ResourceRecordID == "" {
		return nil, fmt.Errorf("ResourceRecordID: %w", errMissingField)
	}
	if m.MediaURL == "" {
		return nil, fmt.Errorf("MediaURL: %w", errMissingField)
	}
	return &models.MediaItem{
		Key:        m.MediaKey,
		MLSNumber:  m.ResourceRecordID,
		URL:        m.MediaURL,
		Order:      m.Order,
		ModifiedAt: m.ModificationTimestamp,
	}, nil
}

// NativeID extracts the source's own identifier from a raw record without
// fully decoding it, so a failed record can still be reported by id.
func NativeID(rec models.RawRecord) string {
	var ids struct {
		ListingID        string `json:"ListingId"`
		ListingKey       string `json:"ListingKey"`
		MediaKey         string `json:"MediaKey"`
		SearchListingID  string `json:"listingId"`
		DatabaseID       string `json:"id"`
		ResourceRecordID string `json:"ResourceRecordID"`
	}
	_ = json.Unmarshal(rec.Raw(), &ids)

	switch rec.(type) {
	case models.MLSPropertyRecord:
		return firstNonEmpty(ids.ListingID, ids.ListingKey)
	case models.MLSMediaRecord:
		return firstNonEmpty(ids.MediaKey, ids.ResourceRecordID)
	case models.SearchRecord:
		return ids.SearchListingID
	case models.DatabaseRecord:
		return ids.DatabaseID
	}
	return ""
}

func fromMLS(payload json.RawMessage) (*models.CanonicalListing, error) {
	var p models.MLSProperty
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode property: %w", err)
	}
	if p.ListingID == "" {
		return nil, fmt.Errorf("ListingId: %w", errMissingField)
	}

	l := &models.CanonicalListing{
		SourceIDs:         map[models.Source]string{models.SourceMLS: p.ListingID},
		MLSNumber:         p.ListingID,
		StandardStatus:    NormalizeStatus(firstNonEmpty(p.StandardStatus, p.MlsStatus), ""),
		ListPrice:         p.ListPrice,
		OriginalListPrice: p.OriginalListPrice,
		ClosePrice:        p.ClosePrice,
		Address: models.Address{
			StreetNumber: p.StreetNumber,
			StreetName:   joinNonEmpty(p.StreetName, p.StreetSuffix),
			Unit:         p.UnitNumber,
			City:         p.City,
			State:        p.StateOrProvince,
			PostalCode:   p.PostalCode,
			Full:         p.UnparsedAddress,
		},
		Latitude:              p.Latitude,
		Longitude:             p.Longitude,
		Beds:                  p.BedroomsTotal,
		Baths:                 p.BathroomsTotal,
		LivingArea:            p.LivingArea,
		LotSizeAcres:          p.LotSizeAcres,
		YearBuilt:             p.YearBuilt,
		PropertyType:          p.PropertyType,
		PropertySubType:       p.PropertySubType,
		Subdivision:           p.SubdivisionName,
		ElementarySchool:      p.ElementarySchool,
		MiddleSchool:          p.MiddleOrJuniorSchool,
		HighSchool:            p.HighSchool,
		Description:           htmlToText(p.PublicRemarks),
		ListDate:              parseDate(p.ListingContractDate),
		CloseDate:             parseDate(p.CloseDate),
		ModificationTimestamp: utc(p.ModificationTimestamp),
	}
	return l, nil
}

func fromSearch(payload json.RawMessage) (*models.CanonicalListing, error) {
	var p models.SearchListing
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode search listing: %w", err)
	}
	if p.ListingID == "" {
		return nil, fmt.Errorf("listingId: %w", errMissingField)
	}

	l := &models.CanonicalListing{
		SourceIDs:         map[models.Source]string{models.SourceSearch: p.ListingID},
		MLSNumber:         p.MlsNumber,
		StandardStatus:    NormalizeStatus(p.Status, p.LastStatus),
		ListPrice:         p.ListPrice,
		OriginalListPrice: p.OriginalPrice,
		ClosePrice:        p.SoldPrice,
		Address: models.Address{
			StreetNumber: p.Address.StreetNumber,
			StreetName:   joinNonEmpty(p.Address.StreetName, p.Address.StreetSuffix),
			Unit:         p.Address.UnitNumber,
			City:         p.Address.City,
			State:        p.Address.State,
			PostalCode:   p.Address.Zip,
		},
		Latitude:              p.Map.Latitude,
		Longitude:             p.Map.Longitude,
		Beds:                  p.Details.NumBedrooms,
		Baths:                 p.Details.NumBathrooms,
		LivingArea:            p.Details.Sqft,
		LotSizeAcres:          p.Lot.Acres,
		YearBuilt:             p.Details.YearBuilt,
		PropertyType:          p.Details.PropertyType,
		PropertySubType:       p.Details.Style,
		Subdivision:           p.Address.Neighborhood,
		Description:           htmlToText(p.Details.Description),
		Photos:                unionPhotos(nil, p.Images),
		ListDate:              parseDate(p.ListDate),
		CloseDate:             parseDate(p.SoldDate),
		ModificationTimestamp: utc(p.UpdatedOn),
	}
	return l, nil
}

func fromDatabase(payload json.RawMessage) (*models.CanonicalListing, error) {
	var p models.DatabaseListing
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode database listing: %w", err)
	}
	// Manually entered listings may not have an id yet; the address key
	// stands in for one.
	l := &models.CanonicalListing{
		SourceIDs:      map[models.Source]string{},
		MLSNumber:      p.MLSNumber,
		StandardStatus: NormalizeStatus(p.Status, ""),
		ListPrice:      p.Price,
		Address: models.Address{
			StreetNumber: p.StreetNumber,
			StreetName:   p.StreetName,
			Unit:         p.Unit,
			City:         p.City,
			State:        p.State,
			PostalCode:   p.PostalCode,
		},
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Beds:         p.Beds,
		Baths:        p.Baths,
		LivingArea:   p.LivingArea,
		YearBuilt:    p.YearBuilt,
		PropertyType: p.PropertyType,
		Description:  htmlToText(p.Description),
		Photos:       unionPhotos(nil, p.Photos),
	}
	if p.ID != "" {
		l.SourceIDs[models.SourceDatabase] = p.ID
	}
	return l, nil
}

// htmlToText reduces an HTML remarks fragment to plain text.
func htmlToText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func compactRaw(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
