package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Source identifies where a piece of listing data came from.
type Source string

const (
	SourceMLS      Source = "MLS"
	SourceSearch   Source = "SEARCH_API"
	SourceDatabase Source = "DATABASE"
)

// Priority orders sources for conflict resolution: MLS > SEARCH_API > DATABASE.
func (s Source) Priority() int {
	switch s {
	case SourceMLS:
		return 3
	case SourceSearch:
		return 2
	case SourceDatabase:
		return 1
	default:
		return 0
	}
}

func (s Source) Valid() bool {
	return s.Priority() > 0
}

// StandardStatus is the closed set of lifecycle states a listing can be in.
type StandardStatus string

const (
	StatusActive              StandardStatus = "Active"
	StatusActiveUnderContract StandardStatus = "Active Under Contract"
	StatusPending             StandardStatus = "Pending"
	StatusClosed              StandardStatus = "Closed"
	StatusUnknown             StandardStatus = "Unknown"
)

// Known reports whether the status carries information. Unknown and empty do not.
func (s StandardStatus) Known() bool {
	return s != "" && s != StatusUnknown
}

type Address struct {
	StreetNumber string `json:"street_number,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	Unit         string `json:"unit,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Full         string `json:"full,omitempty"`
}

// CanonicalListing is the merged view of one property listing across all sources.
type CanonicalListing struct {
	ID            string            `json:"id"`
	SourceIDs     map[Source]string `json:"source_ids,omitempty"`
	Sources       []Source          `json:"sources,omitempty"`
	PrimarySource Source            `json:"primary_source"`
	// MLSNumber is the board-issued listing number. Any source may report it.
	MLSNumber      string         `json:"mls_number,omitempty"`
	StandardStatus StandardStatus `json:"standard_status"`

	ListPrice         *float64 `json:"list_price,omitempty"`
	OriginalListPrice *float64 `json:"original_list_price,omitempty"`
	ClosePrice        *float64 `json:"close_price,omitempty"`

	Address    Address  `json:"address"`
	AddressKey string   `json:"address_key,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`

	Beds         *int     `json:"beds,omitempty"`
	Baths        *float64 `json:"baths,omitempty"`
	LivingArea   *float64 `json:"living_area,omitempty"`
	LotSizeAcres *float64 `json:"lot_size_acres,omitempty"`
	YearBuilt    *int     `json:"year_built,omitempty"`

	PropertyType     string `json:"property_type,omitempty"`
	PropertySubType  string `json:"property_sub_type,omitempty"`
	Subdivision      string `json:"subdivision,omitempty"`
	ElementarySchool string `json:"elementary_school,omitempty"`
	MiddleSchool     string `json:"middle_school,omitempty"`
	HighSchool       string `json:"high_school,omitempty"`
	Description      string `json:"description,omitempty"`

	Photos []string `json:"photos,omitempty"`
	// PhotoOrder is the feed's display position for photos attached by media sync.
	PhotoOrder map[string]int `json:"photo_order,omitempty"`

	ListDate              *time.Time `json:"list_date,omitempty"`
	CloseDate             *time.Time `json:"close_date,omitempty"`
	ModificationTimestamp *time.Time `json:"modification_timestamp,omitempty"`

	// RawPayloads holds the original record per contributing source.
	RawPayloads map[Source]json.RawMessage `json:"raw_payloads,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// HasSource reports whether src has contributed to the listing.
func (l *CanonicalListing) HasSource(src Source) bool {
	for _, s := range l.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// AddSource records src as a contributor, keeping Sources ordered by priority.
func (l *CanonicalListing) AddSource(src Source) {
	if l.HasSource(src) {
		return
	}
	l.Sources = append(l.Sources, src)
	SortSources(l.Sources)
}

// SortSources orders sources highest priority first.
func SortSources(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() > sources[j].Priority()
	})
}

// HighestPriority returns the highest-priority source in the list.
func HighestPriority(sources []Source) Source {
	var best Source
	for _, s := range sources {
		if s.Priority() > best.Priority() {
			best = s
		}
	}
	return best
}

// SortPhotos puts photos with a known feed position first, in that order.
// The rest keep their relative order after them.
func (l *CanonicalListing) SortPhotos() {
	pos := func(url string) (int, bool) {
		p, ok := l.PhotoOrder[url]
		return p, ok
	}
	sort.SliceStable(l.Photos, func(i, j int) bool {
		pi, oki := pos(l.Photos[i])
		pj, okj := pos(l.Photos[j])
		if oki && okj {
			return pi < pj
		}
		return oki && !okj
	})
}

// WithoutRaw returns a shallow copy with raw payloads stripped, for API consumers.
func (l *CanonicalListing) WithoutRaw() *CanonicalListing {
	cp := *l
	cp.RawPayloads = nil
	return &cp
}

// Clone returns a deep copy.
func (l *CanonicalListing) Clone() *CanonicalListing {
	cp := *l
	if l.SourceIDs != nil {
		cp.SourceIDs = make(map[Source]string, len(l.SourceIDs))
		for k, v := range l.SourceIDs {
			cp.SourceIDs[k] = v
		}
	}
	cp.Sources = append([]Source(nil), l.Sources...)
	cp.Photos = append([]string(nil), l.Photos...)
	if l.PhotoOrder != nil {
		cp.PhotoOrder = make(map[string]int, len(l.PhotoOrder))
		for k, v := range l.PhotoOrder {
			cp.PhotoOrder[k] = v
		}
	}
	if l.RawPayloads != nil {
		cp.RawPayloads = make(map[Source]json.RawMessage, len(l.RawPayloads))
		for k, v := range l.RawPayloads {
			cp.RawPayloads[k] = append(json.RawMessage(nil), v...)
		}
	}
	cp.ListPrice = cloneFloat(l.ListPrice)
	cp.OriginalListPrice = cloneFloat(l.OriginalListPrice)
	cp.ClosePrice = cloneFloat(l.ClosePrice)
	cp.Latitude = cloneFloat(l.Latitude)
	cp.Longitude = cloneFloat(l.Longitude)
	cp.Baths = cloneFloat(l.Baths)
	cp.LivingArea = cloneFloat(l.LivingArea)
	cp.LotSizeAcres = cloneFloat(l.LotSizeAcres)
	cp.Beds = cloneInt(l.Beds)
	cp.YearBuilt = cloneInt(l.YearBuilt)
	cp.ListDate = cloneTime(l.ListDate)
	cp.CloseDate = cloneTime(l.CloseDate)
	cp.ModificationTimestamp = cloneTime(l.ModificationTimestamp)
	return &cp
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
