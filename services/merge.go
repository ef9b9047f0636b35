package services

import (
	"encoding/json"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// Merge combines two partial views of the same listing. Every field primary
// already has wins; gaps are filled from secondary. Neither input is modified.
func Merge(primary, secondary *models.CanonicalListing) *models.CanonicalListing {
	out := primary.Clone()

	if out.ID == "" {
		out.ID = secondary.ID
	}
	if out.MLSNumber == "" {
		out.MLSNumber = secondary.MLSNumber
	}
	if !out.StandardStatus.Known() && secondary.StandardStatus.Known() {
		out.StandardStatus = secondary.StandardStatus
	}
	if out.StandardStatus == "" {
		out.StandardStatus = models.StatusUnknown
	}

	if out.SourceIDs == nil {
		out.SourceIDs = make(map[models.Source]string, len(secondary.SourceIDs))
	}
	for src, id := range secondary.SourceIDs {
		if _, ok := out.SourceIDs[src]; !ok {
			out.SourceIDs[src] = id
		}
	}
	for _, src := range secondary.Sources {
		out.AddSource(src)
	}
	models.SortSources(out.Sources)
	out.PrimarySource = models.HighestPriority(out.Sources)

	fillFloat(&out.ListPrice, secondary.ListPrice)
	fillFloat(&out.OriginalListPrice, secondary.OriginalListPrice)
	fillFloat(&out.ClosePrice, secondary.ClosePrice)
	fillFloat(&out.Latitude, secondary.Latitude)
	fillFloat(&out.Longitude, secondary.Longitude)
	fillFloat(&out.Baths, secondary.Baths)
	fillFloat(&out.LivingArea, secondary.LivingArea)
	fillFloat(&out.LotSizeAcres, secondary.LotSizeAcres)
	fillInt(&out.Beds, secondary.Beds)
	fillInt(&out.YearBuilt, secondary.YearBuilt)

	fillString(&out.Address.StreetNumber, secondary.Address.StreetNumber)
	fillString(&out.Address.StreetName, secondary.Address.StreetName)
	fillString(&out.Address.Unit, secondary.Address.Unit)
	fillString(&out.Address.City, secondary.Address.City)
	fillString(&out.Address.State, secondary.Address.State)
	fillString(&out.Address.PostalCode, secondary.Address.PostalCode)
	fillString(&out.Address.Full, secondary.Address.Full)
	fillString(&out.AddressKey, secondary.AddressKey)

	fillString(&out.PropertyType, secondary.PropertyType)
	fillString(&out.PropertySubType, secondary.PropertySubType)
	fillString(&out.Subdivision, secondary.Subdivision)
	fillString(&out.ElementarySchool, secondary.ElementarySchool)
	fillString(&out.MiddleSchool, secondary.MiddleSchool)
	fillString(&out.HighSchool, secondary.HighSchool)
	fillString(&out.Description, secondary.Description)

	fillTime(&out.ListDate, secondary.ListDate)
	fillTime(&out.CloseDate, secondary.CloseDate)
	fillTime(&out.ModificationTimestamp, secondary.ModificationTimestamp)

	out.Photos = unionPhotos(out.Photos, secondary.Photos)
	for url, pos := range secondary.PhotoOrder {
		if out.PhotoOrder == nil {
			out.PhotoOrder = make(map[string]int, len(secondary.PhotoOrder))
		}
		if _, ok := out.PhotoOrder[url]; !ok {
			out.PhotoOrder[url] = pos
		}
	}
	if len(out.PhotoOrder) > 0 {
		out.SortPhotos()
	}

	if len(secondary.RawPayloads) > 0 && out.RawPayloads == nil {
		out.RawPayloads = make(map[models.Source]json.RawMessage, len(secondary.RawPayloads))
	}
	for src, raw := range secondary.RawPayloads {
		if _, ok := out.RawPayloads[src]; !ok {
			out.RawPayloads[src] = append(json.RawMessage(nil), raw...)
		}
	}

	if out.CreatedAt.IsZero() || (!secondary.CreatedAt.IsZero() && secondary.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = secondary.CreatedAt
	}

	return out
}

func unionPhotos(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, url := range list {
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			out = append(out, url)
		}
	}
	return out
}

func fillFloat(dst **float64, src *float64) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}

func fillInt(dst **int, src *int) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}

func fillString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func fillTime(dst **time.Time, src *time.Time) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}
