package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawRecord is one undecoded record from an upstream source. The concrete
// type tells the transform step which payload shape to expect.
type RawRecord interface {
	Source() Source
	Raw() json.RawMessage
	rawRecord()
}

// MLSPropertyRecord is a Property resource record from the replication feed.
type MLSPropertyRecord struct{ Payload json.RawMessage }

// MLSMediaRecord is a Media resource record from the replication feed.
type MLSMediaRecord struct{ Payload json.RawMessage }

// SearchRecord is a listing object from the real-time search API.
type SearchRecord struct{ Payload json.RawMessage }

// DatabaseRecord is an internally entered listing (CRM import, manual entry).
type DatabaseRecord struct{ Payload json.RawMessage }

func (MLSPropertyRecord) Source() Source { return SourceMLS }
func (MLSMediaRecord) Source() Source    { return SourceMLS }
func (SearchRecord) Source() Source      { return SourceSearch }
func (DatabaseRecord) Source() Source    { return SourceDatabase }

func (r MLSPropertyRecord) Raw() json.RawMessage { return r.Payload }
func (r MLSMediaRecord) Raw() json.RawMessage    { return r.Payload }
func (r SearchRecord) Raw() json.RawMessage      { return r.Payload }
func (r DatabaseRecord) Raw() json.RawMessage    { return r.Payload }

func (MLSPropertyRecord) rawRecord() {}
func (MLSMediaRecord) rawRecord()    {}
func (SearchRecord) rawRecord()      {}
func (DatabaseRecord) rawRecord()    {}

// MLSProperty is the RESO-style Property payload.
type MLSProperty struct {
	ListingKey            string     `json:"ListingKey"`
	ListingID             string     `json:"ListingId"`
	StandardStatus        string     `json:"StandardStatus"`
	MlsStatus             string     `json:"MlsStatus"`
	ListPrice             *float64   `json:"ListPrice"`
	OriginalListPrice     *float64   `json:"OriginalListPrice"`
	ClosePrice            *float64   `json:"ClosePrice"`
	StreetNumber          string     `json:"StreetNumber"`
	StreetName            string     `json:"StreetName"`
	StreetSuffix          string     `json:"StreetSuffix"`
	UnitNumber            string     `json:"UnitNumber"`
	City                  string     `json:"City"`
	StateOrProvince       string     `json:"StateOrProvince"`
	PostalCode            string     `json:"PostalCode"`
	UnparsedAddress       string     `json:"UnparsedAddress"`
	Latitude              *float64   `json:"Latitude"`
	Longitude             *float64   `json:"Longitude"`
	BedroomsTotal         *int       `json:"BedroomsTotal"`
	BathroomsTotal        *float64   `json:"BathroomsTotalInteger"`
	LivingArea            *float64   `json:"LivingArea"`
	LotSizeAcres          *float64   `json:"LotSizeAcres"`
	YearBuilt             *int       `json:"YearBuilt"`
	PropertyType          string     `json:"PropertyType"`
	PropertySubType       string     `json:"PropertySubType"`
	SubdivisionName       string     `json:"SubdivisionName"`
	ElementarySchool      string     `json:"ElementarySchool"`
	MiddleOrJuniorSchool  string     `json:"MiddleOrJuniorSchool"`
	HighSchool            string     `json:"HighSchool"`
	PublicRemarks         string     `json:"PublicRemarks"`
	ListingContractDate   string     `json:"ListingContractDate"`
	CloseDate             string     `json:"CloseDate"`
	ModificationTimestamp *time.Time `json:"ModificationTimestamp"`
}

// MLSMedia is the RESO-style Media payload. ResourceRecordID carries the
// MLS number of the listing the media belongs to.
type MLSMedia struct {
	MediaKey              string     `json:"MediaKey"`
	ResourceRecordKey     string     `json:"ResourceRecordKey"`
	ResourceRecordID      string     `json:"ResourceRecordID"`
	MediaURL              string     `json:"MediaURL"`
	MediaCategory         string     `json:"MediaCategory"`
	Order                 int        `json:"Order"`
	ModificationTimestamp *time.Time `json:"ModificationTimestamp"`
}

// SearchListing is a listing object returned by the real-time search API.
type SearchListing struct {
	ListingID     string   `json:"listingId"`
	MlsNumber     string   `json:"mlsNumber"`
	Status        string   `json:"status"`
	LastStatus    string   `json:"lastStatus"`
	ListPrice     *float64 `json:"listPrice"`
	OriginalPrice *float64 `json:"originalPrice"`
	SoldPrice     *float64 `json:"soldPrice"`
	Address       struct {
		StreetNumber string `json:"streetNumber"`
		StreetName   string `json:"streetName"`
		StreetSuffix string `json:"streetSuffix"`
		UnitNumber   string `json:"unitNumber"`
		City         string `json:"city"`
		State        string `json:"state"`
		Zip          string `json:"zip"`
		Neighborhood string `json:"neighborhood"`
	} `json:"address"`
	Map struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"map"`
	Details struct {
		NumBedrooms  *int     `json:"numBedrooms"`
		NumBathrooms *float64 `json:"numBathrooms"`
		Sqft         *float64 `json:"sqft"`
		YearBuilt    *int     `json:"yearBuilt"`
		PropertyType string   `json:"propertyType"`
		Style        string   `json:"style"`
		Description  string   `json:"description"`
	} `json:"details"`
	Lot struct {
		Acres *float64 `json:"acres"`
	} `json:"lot"`
	Images    []string   `json:"images"`
	ListDate  string     `json:"listDate"`
	SoldDate  string     `json:"soldDate"`
	UpdatedOn *time.Time `json:"updatedOn"`
}

// DatabaseListing is a listing entered through the internal CRM.
type DatabaseListing struct {
	ID           string   `json:"id"`
	MLSNumber    string   `json:"mls_number"`
	Status       string   `json:"status"`
	Price        *float64 `json:"price"`
	StreetNumber string   `json:"street_number"`
	StreetName   string   `json:"street_name"`
	Unit         string   `json:"unit"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	PostalCode   string   `json:"postal_code"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Beds         *int     `json:"beds"`
	Baths        *float64 `json:"baths"`
	LivingArea   *float64 `json:"living_area"`
	YearBuilt    *int     `json:"year_built"`
	PropertyType string   `json:"property_type"`
	Description  string   `json:"description"`
	Photos       []string `json:"photos"`
}

// MediaItem is a decoded media record ready to attach to a listing.
type MediaItem struct {
	Key        string
	MLSNumber  string
	URL        string
	Order      int
	ModifiedAt *time.Time
}

type RecordErrorKind string

const (
	ErrKindTransform   RecordErrorKind = "transform"
	ErrKindPersistence RecordErrorKind = "persistence"
	ErrKindOrphan      RecordErrorKind = "orphan"
)

// RecordError describes why a single record was skipped.
type RecordError struct {
	Kind     RecordErrorKind `json:"kind"`
	Source   Source          `json:"source"`
	NativeID string          `json:"native_id,omitempty"`

	// ModifiedAt is the upstream modification time, when the record had one.
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	Err        error      `json:"-"`
}

func (e *RecordError) Error() string {
	id := e.NativeID
	if id == "" {
		id = "?"
	}
	return fmt.Sprintf("%s error on %s record %s: %v", e.Kind, e.Source, id, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
