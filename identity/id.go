package identity

import (
	"errors"
	"strings"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/google/uuid"
)

// ErrNoIdentity is returned when a record carries neither an identifier
// nor enough address to key on.
var ErrNoIdentity = errors.New("record has no identifier and no address key")

// listingNamespace seeds address-derived ids so they are stable across runs.
var listingNamespace = uuid.MustParse("5b0f4a52-3c3e-4f7b-9a36-8d0c1f6e2a71")

// ListingID derives the canonical id for a listing that has not been stored
// yet. Priority: MLS number, search listing id, database id, address key.
// A key without a street name is too weak to name a listing by.
func ListingID(l *models.CanonicalListing) (string, error) {
	if n := mlsNumber(l); n != "" {
		return "mls-" + slug(n), nil
	}
	if id := l.SourceIDs[models.SourceSearch]; id != "" {
		return "search-" + slug(id), nil
	}
	if id := l.SourceIDs[models.SourceDatabase]; id != "" {
		return "db-" + slug(id), nil
	}
	if l.AddressKey != "" && strings.TrimSpace(l.Address.StreetName) != "" {
		return "addr-" + uuid.NewSHA1(listingNamespace, []byte(l.AddressKey)).String(), nil
	}
	return "", ErrNoIdentity
}

func mlsNumber(l *models.CanonicalListing) string {
	if l.MLSNumber != "" {
		return l.MLSNumber
	}
	return l.SourceIDs[models.SourceMLS]
}

func slug(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, id)
}
