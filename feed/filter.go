package feed

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// Range bounds a numeric field. A zero bound is open.
type Range struct {
	Min float64
	Max float64
}

// SearchParams are the typed filters the feed understands.
type SearchParams struct {
	ModifiedSince   time.Time
	Price           Range
	Beds            Range
	Baths           Range
	LivingArea      Range
	YearBuilt       Range
	PostalCodes     []string
	Cities          []string
	Subdivisions    []string
	PropertySubType []string
	Statuses        []models.StandardStatus

	Top  int
	Skip int
}

// BuildFilter renders the $filter expression. Statuses default to Active.
func BuildFilter(p SearchParams) string {
	var clauses []string

	if !p.ModifiedSince.IsZero() {
		clauses = append(clauses, "ModificationTimestamp gt "+p.ModifiedSince.UTC().Format(time.RFC3339))
	}

	clauses = appendRange(clauses, "ListPrice", p.Price)
	clauses = appendRange(clauses, "BedroomsTotal", p.Beds)
	clauses = appendRange(clauses, "BathroomsTotalInteger", p.Baths)
	clauses = appendRange(clauses, "LivingArea", p.LivingArea)
	clauses = appendRange(clauses, "YearBuilt", p.YearBuilt)

	clauses = appendAnyOf(clauses, "PostalCode", p.PostalCodes)
	clauses = appendAnyOf(clauses, "City", p.Cities)
	clauses = appendAnyOf(clauses, "SubdivisionName", p.Subdivisions)
	clauses = appendAnyOf(clauses, "PropertySubType", p.PropertySubType)

	statuses := make([]string, 0, len(p.Statuses))
	for _, s := range p.Statuses {
		statuses = append(statuses, string(s))
	}
	if len(statuses) == 0 {
		statuses = []string{string(models.StatusActive)}
	}
	clauses = appendAnyOf(clauses, "StandardStatus", statuses)

	return strings.Join(clauses, " and ")
}

// BuildQuery renders the full query string, newest modifications first.
func BuildQuery(p SearchParams) url.Values {
	q := url.Values{}
	q.Set("$filter", BuildFilter(p))
	q.Set("$orderby", "ModificationTimestamp desc")
	if p.Top > 0 {
		q.Set("$top", strconv.Itoa(p.Top))
	}
	if p.Skip > 0 {
		q.Set("$skip", strconv.Itoa(p.Skip))
	}
	return q
}

func appendRange(clauses []string, field string, r Range) []string {
	if r.Min > 0 {
		clauses = append(clauses, fmt.Sprintf("%s ge %s", field, formatNumber(r.Min)))
	}
	if r.Max > 0 {
		clauses = append(clauses, fmt.Sprintf("%s le %s", field, formatNumber(r.Max)))
	}
	return clauses
}

func appendAnyOf(clauses []string, field string, values []string) []string {
	var parts []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s eq '%s'", field, escapeLiteral(v)))
	}
	switch len(parts) {
	case 0:
		return clauses
	case 1:
		return append(clauses, parts[0])
	default:
		return append(clauses, "("+strings.Join(parts, " or ")+")")
	}
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
