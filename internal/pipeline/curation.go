package pipeline

import (
	"strings"

	"horse.fit/shelf/internal/rules"
)

// Curation rule names, stable for rejection counters.
const (
	RuleRequiredField    = "required_field"
	RuleExcludedCategory = "excluded_category"
	RulePriceBand        = "price_band"
	RuleBrandBlacklist   = "brand_blacklist"
)

// Decision is the outcome of the curation filter for one record. A record
// can be admitted without being curated: admission is the structural floor,
// curation is the stricter publication bar.
type Decision struct {
	Admit   bool
	Rule    string
	Curated bool
}

// Err returns a *CurationError for a rejected decision, nil otherwise.
func (d Decision) Err() error {
	if d.Admit {
		return nil
	}
	return &CurationError{Rule: d.Rule}
}

// Filter applies the configured curation rules. Pure transform, safe for
// concurrent use.
type Filter struct {
	curation rules.Curation
}

func NewFilter(curation rules.Curation) *Filter {
	return &Filter{curation: curation}
}

// Evaluate checks the record against the admission rules in order and, for
// admitted records, computes the curated flag. A low or missing rating
// never blocks admission: such records are kept and flagged non-curated.
func (f *Filter) Evaluate(record Record) Decision {
	for _, field := range f.curation.RequiredFields {
		if !fieldPresent(record, field) {
			return Decision{Rule: RuleRequiredField}
		}
	}

	category := strings.ToLower(record.Category)
	for _, excluded := range f.curation.ExcludedCategories {
		if excluded != "" && strings.Contains(category, strings.ToLower(excluded)) {
			return Decision{Rule: RuleExcludedCategory}
		}
	}

	if record.CurrentPrice != nil {
		band := f.curation.PriceBandFor(record.Category)
		if *record.CurrentPrice < band.Min || *record.CurrentPrice > band.Max {
			return Decision{Rule: RulePriceBand}
		}
	}

	brand := strings.ToLower(record.Brand)
	if brand != "" {
		for _, blacklisted := range f.curation.BrandBlacklist {
			if blacklisted != "" && strings.Contains(brand, strings.ToLower(blacklisted)) {
				return Decision{Rule: RuleBrandBlacklist}
			}
		}
	}

	return Decision{
		Admit:   true,
		Curated: f.isCurated(record),
	}
}

func (f *Filter) isCurated(record Record) bool {
	if record.Rating == nil || *record.Rating < f.curation.MinRating {
		return false
	}
	if record.ReviewCount == nil || *record.ReviewCount < f.curation.MinReviewCount {
		return false
	}
	if record.Availability == AvailabilityOutOfStock {
		return false
	}
	if len(record.Images) == 0 {
		return false
	}
	if len(record.Specifications) == 0 {
		return false
	}
	return true
}

func fieldPresent(record Record, name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "title":
		return record.Title != ""
	case "description":
		return record.Description != ""
	case "brand":
		return record.Brand != ""
	case "model":
		return record.Model != ""
	case "current_price":
		return record.CurrentPrice != nil
	case "original_price":
		return record.OriginalPrice != nil
	case "currency":
		return record.Currency != ""
	case "product_url":
		return record.ProductURL != ""
	case "category":
		return record.Category != ""
	case "subcategory":
		return record.Subcategory != ""
	case "rating":
		return record.Rating != nil
	case "review_count":
		return record.ReviewCount != nil
	case "images":
		return len(record.Images) > 0
	case "specifications":
		return len(record.Specifications) > 0
	default:
		return false
	}
}
