package identity

import (
	"strings"
	"testing"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

func TestAddressKey_Equivalence(t *testing.T) {
	a := AddressKey("123", "Main Street", "", "Austin", "TX", "78704")
	b := AddressKey("123", "Main St", "", "austin", "tx", "78704-1234")
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if a != "123|main st|austin|tx|78704" {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestAddressKey_Normalization(t *testing.T) {
	tests := []struct {
		name string
		a, b [6]string
	}{
		{
			"whitespace and case",
			[6]string{" 42 ", "  Oak   Avenue ", "", "DALLAS", "Tx", "75201"},
			[6]string{"42", "oak ave", "", "dallas", "TX", "75201"},
		},
		{
			"unit prefixes",
			[6]string{"10", "Elm Dr", "Apt 4B", "Austin", "TX", "78701"},
			[6]string{"10", "Elm Drive", "#4B", "Austin", "TX", "78701"},
		},
		{
			"directions",
			[6]string{"9", "North Lamar Boulevard", "", "Austin", "TX", "78756"},
			[6]string{"9", "N Lamar Blvd", "", "Austin", "TX", "78756"},
		},
		{
			"punctuation",
			[6]string{"5", "St. Johns Pkwy.", "", "Austin", "TX", ""},
			[6]string{"5", "St Johns Parkway", "", "Austin", "TX", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := AddressKey(tt.a[0], tt.a[1], tt.a[2], tt.a[3], tt.a[4], tt.a[5])
			kb := AddressKey(tt.b[0], tt.b[1], tt.b[2], tt.b[3], tt.b[4], tt.b[5])
			if ka != kb {
				t.Errorf("expected %q == %q", ka, kb)
			}
		})
	}
}

func TestAddressKey_SuffixOnlyWholeTokens(t *testing.T) {
	k := AddressKey("1", "Streetsville Road", "", "", "", "")
	if !strings.Contains(k, "streetsville rd") {
		t.Fatalf("expected streetsville to survive, got %q", k)
	}
}

func TestAddressKey_PartialAndEmpty(t *testing.T) {
	if k := AddressKey("", "Main St", "", "", "", ""); k != "main st" {
		t.Fatalf("expected partial key, got %q", k)
	}
	if k := AddressKey("123", "", "", "Austin", "TX", "78704"); k != "123|austin|tx|78704" {
		t.Fatalf("expected street omitted from key, got %q", k)
	}
	if k := AddressKey("", "", "", "", "", ""); k != "" {
		t.Fatalf("expected empty key, got %q", k)
	}
	if k := AddressKey("1", "King St", "", "Windsor", "ON", "N9A 1B2"); !strings.HasSuffix(k, "|n9a1b2") {
		t.Fatalf("expected compact postal code, got %q", k)
	}
}

func TestListingID_Priority(t *testing.T) {
	l := &models.CanonicalListing{
		SourceIDs: map[models.Source]string{
			models.SourceSearch:   "S-77",
			models.SourceDatabase: "12",
		},
		AddressKey: "1|main st",
	}
	id, err := ListingID(l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "search-s-77" {
		t.Fatalf("expected search id, got %s", id)
	}

	l.MLSNumber = "ACT123"
	id, _ = ListingID(l)
	if id != "mls-act123" {
		t.Fatalf("expected mls id, got %s", id)
	}
}

func TestListingID_AddressFallbackIsStable(t *testing.T) {
	addr := models.Address{StreetNumber: "123", StreetName: "Main St", City: "Austin", State: "TX", PostalCode: "78704"}
	l := &models.CanonicalListing{Address: addr, AddressKey: KeyFromAddress(addr)}
	a, err := ListingID(l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := ListingID(&models.CanonicalListing{Address: addr, AddressKey: "123|main st|austin|tx|78704"})
	if a != b || !strings.HasPrefix(a, "addr-") {
		t.Fatalf("expected stable addr id, got %s and %s", a, b)
	}

	if _, err := ListingID(&models.CanonicalListing{}); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestListingID_StreetlessKeyIsNotAnIdentity(t *testing.T) {
	addr := models.Address{StreetNumber: "123", City: "Austin", State: "TX", PostalCode: "78704"}
	l := &models.CanonicalListing{Address: addr, AddressKey: KeyFromAddress(addr)}
	if l.AddressKey == "" {
		t.Fatal("expected a partial key for a street-less address")
	}
	if _, err := ListingID(l); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}
