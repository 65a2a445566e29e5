package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Availability is the canonical stock state of a normalized record.
type Availability string

const (
	AvailabilityInStock      Availability = "in_stock"
	AvailabilityOutOfStock   Availability = "out_of_stock"
	AvailabilityPreOrder     Availability = "pre_order"
	AvailabilityLimitedStock Availability = "limited_stock"
	AvailabilityUnknown      Availability = "unknown"
)

// Image is one entry of a record's ordered image list.
type Image struct {
	URL     string `json:"url"`
	Type    string `json:"type"`
	AltText string `json:"alt_text,omitempty"`
}

// Variation is one product variation (color, size, style, ...).
type Variation struct {
	Type         string       `json:"type"`
	Value        string       `json:"value"`
	Price        *float64     `json:"price,omitempty"`
	Availability Availability `json:"availability"`
}

// Record is the canonical product shape every pipeline stage after the
// normalizer operates on. Treat it as immutable once produced.
type Record struct {
	ExternalID string
	Platform   string

	Title       string
	Description string
	Brand       string
	Model       string

	CurrentPrice       *float64
	OriginalPrice      *float64
	Currency           string
	DiscountPercentage float64

	Availability Availability

	Rating      *float64
	ReviewCount *int

	Category    string
	Subcategory string

	Images         []Image
	Specifications map[string]string
	Variations     []Variation

	ProductURL   string
	Language     string
	ScrapedAt    time.Time
	SourceSpider string

	IsCurated bool
}

// IncompleteRecordError reports that a required field could not be derived
// during normalization. The record is dropped, not retried.
type IncompleteRecordError struct {
	Missing []string
}

func (e *IncompleteRecordError) Error() string {
	return fmt.Sprintf("incomplete record: missing %s", strings.Join(e.Missing, ", "))
}

// CurationError reports the first curation rule an admitted candidate
// failed. The rule name is stable and used for per-rule rejection counters.
type CurationError struct {
	Rule string
}

func (e *CurationError) Error() string {
	return fmt.Sprintf("curation rejected: %s", e.Rule)
}

// BatchSummary is returned by a full pipeline run even when individual
// records failed along the way.
type BatchSummary struct {
	Admitted        int
	RejectedByRule  map[string]int
	DuplicatesFound int
	CanonicalCount  int
}
