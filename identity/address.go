package identity

import (
	"regexp"
	"strings"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

var (
	suffixReplacements = map[string]string{
		"street":    "st",
		"avenue":    "ave",
		"av":        "ave",
		"drive":     "dr",
		"road":      "rd",
		"boulevard": "blvd",
		"lane":      "ln",
		"court":     "ct",
		"place":     "pl",
		"circle":    "cir",
		"crescent":  "cres",
		"terrace":   "ter",
		"highway":   "hwy",
		"parkway":   "pkwy",
		"trail":     "trl",
		"square":    "sq",
		"cove":      "cv",
		"north":     "n",
		"south":     "s",
		"east":      "e",
		"west":      "w",
		"northeast": "ne",
		"northwest": "nw",
		"southeast": "se",
		"southwest": "sw",
	}
	unitPrefixes = map[string]bool{
		"apt":       true,
		"apartment": true,
		"unit":      true,
		"ste":       true,
		"suite":     true,
		"no":        true,
		"bldg":      true,
	}
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// AddressKey builds the pipe-joined matching key for a postal address.
// Empty components are left out, so a partial address still yields a
// weaker key. The key is empty only when every component is.
func AddressKey(streetNumber, streetName, unit, city, state, postalCode string) string {
	parts := []string{
		clean(streetNumber),
		normalizeStreet(streetName),
		normalizeUnit(unit),
		clean(city),
		clean(state),
		normalizePostal(postalCode),
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "|")
}

// KeyFromAddress is AddressKey over a models.Address.
func KeyFromAddress(a models.Address) string {
	return AddressKey(a.StreetNumber, a.StreetName, a.Unit, a.City, a.State, a.PostalCode)
}

func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumRegex.ReplaceAllString(s, " ")
	s = multiSpaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// normalizeStreet abbreviates suffix and direction words token by token so
// that "Streetsville" stays intact.
func normalizeStreet(name string) string {
	tokens := strings.Fields(clean(name))
	for i, tok := range tokens {
		if abbrev, ok := suffixReplacements[tok]; ok {
			tokens[i] = abbrev
		}
	}
	return strings.Join(tokens, " ")
}

func normalizeUnit(unit string) string {
	tokens := strings.Fields(clean(unit))
	for len(tokens) > 0 && unitPrefixes[tokens[0]] {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, "")
}

// normalizePostal keeps the 5-digit ZIP. Anything else (Canadian postal
// codes) is compacted to lowercase alphanumerics.
func normalizePostal(code string) string {
	c := strings.ReplaceAll(clean(code), " ", "")
	if c == "" {
		return ""
	}
	if digitsOnlyPrefix(c) >= 5 {
		return c[:5]
	}
	return c
}

func digitsOnlyPrefix(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
