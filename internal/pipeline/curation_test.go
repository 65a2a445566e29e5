package pipeline

import (
	"errors"
	"testing"
)

func defaultFilter(t *testing.T) *Filter {
	t.Helper()
	return NewFilter(mustRules(t).Curation)
}

func admittableRecord() Record {
	price := 19.99
	rating := 4.5
	reviews := 120
	return Record{
		Platform:     "amazon",
		ExternalID:   "B0TEST123",
		Title:        "Widget Pro Wireless Mouse",
		Brand:        "Widget Co",
		Category:     "electronics",
		CurrentPrice: &price,
		ProductURL:   "https://example.com/widget",
		Rating:       &rating,
		ReviewCount:  &reviews,
		Availability: AvailabilityInStock,
		Images:       []Image{{URL: "https://example.com/a.jpg", Type: "primary"}},
		Specifications: map[string]string{
			"Color": "Black",
		},
	}
}

func TestEvaluateAdmitsAndCurates(t *testing.T) {
	t.Parallel()

	decision := defaultFilter(t).Evaluate(admittableRecord())
	if !decision.Admit {
		t.Fatalf("Evaluate() rejected with rule %q", decision.Rule)
	}
	if !decision.Curated {
		t.Fatalf("Evaluate() should mark the record curated")
	}
	if err := decision.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
}

func TestEvaluateRequiredField(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	record.Title = ""

	decision := defaultFilter(t).Evaluate(record)
	if decision.Admit {
		t.Fatalf("Evaluate() admitted a record without a title")
	}
	if decision.Rule != RuleRequiredField {
		t.Fatalf("Rule = %q, want %q", decision.Rule, RuleRequiredField)
	}
}

func TestEvaluateExcludedCategory(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	record.Category = "Adult Novelty"

	decision := defaultFilter(t).Evaluate(record)
	if decision.Admit {
		t.Fatalf("Evaluate() admitted an excluded category")
	}
	if decision.Rule != RuleExcludedCategory {
		t.Fatalf("Rule = %q, want %q", decision.Rule, RuleExcludedCategory)
	}
}

func TestEvaluatePriceBand(t *testing.T) {
	t.Parallel()

	filter := defaultFilter(t)

	record := admittableRecord()
	low := 5.0
	record.CurrentPrice = &low

	decision := filter.Evaluate(record)
	if decision.Admit {
		t.Fatalf("Evaluate() admitted a price below the electronics band")
	}
	if decision.Rule != RulePriceBand {
		t.Fatalf("Rule = %q, want %q", decision.Rule, RulePriceBand)
	}

	// The same price is fine in a category whose band starts lower.
	record.Category = "books"
	if decision := filter.Evaluate(record); !decision.Admit {
		t.Fatalf("Evaluate() rejected a books price with rule %q", decision.Rule)
	}
}

func TestEvaluateBrandBlacklist(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	record.Brand = "Generic Brand Co"

	decision := defaultFilter(t).Evaluate(record)
	if decision.Admit {
		t.Fatalf("Evaluate() admitted a blacklisted brand")
	}
	if decision.Rule != RuleBrandBlacklist {
		t.Fatalf("Rule = %q, want %q", decision.Rule, RuleBrandBlacklist)
	}
}

func TestEvaluateLowRatingAdmittedNotCurated(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	lowRating := 3.0
	record.Rating = &lowRating

	decision := defaultFilter(t).Evaluate(record)
	if !decision.Admit {
		t.Fatalf("Evaluate() rejected a low rating with rule %q", decision.Rule)
	}
	if decision.Curated {
		t.Fatalf("Evaluate() curated a record below the rating threshold")
	}
}

func TestEvaluateOutOfStockNotCurated(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	record.Availability = AvailabilityOutOfStock

	decision := defaultFilter(t).Evaluate(record)
	if !decision.Admit || decision.Curated {
		t.Fatalf("decision = %+v, want admitted and not curated", decision)
	}
}

func TestEvaluateMissingRatingNotCurated(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	record.Rating = nil

	decision := defaultFilter(t).Evaluate(record)
	if !decision.Admit || decision.Curated {
		t.Fatalf("decision = %+v, want admitted and not curated", decision)
	}
}

func TestDecisionErr(t *testing.T) {
	t.Parallel()

	err := Decision{Rule: RulePriceBand}.Err()
	var curationErr *CurationError
	if !errors.As(err, &curationErr) {
		t.Fatalf("Err() = %v, want *CurationError", err)
	}
	if curationErr.Rule != RulePriceBand {
		t.Fatalf("Rule = %q, want %q", curationErr.Rule, RulePriceBand)
	}
}

func TestFieldPresent(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	if !fieldPresent(record, "current_price") {
		t.Fatalf("fieldPresent(current_price) = false")
	}
	if fieldPresent(record, "description") {
		t.Fatalf("fieldPresent(description) = true for an empty description")
	}
	if fieldPresent(record, "unknown_field") {
		t.Fatalf("fieldPresent(unknown) = true")
	}
}

// TestFieldPresentCoversRuleNames keeps fieldPresent in step with the field
// names the rules loader accepts in curation.required_fields.
func TestFieldPresentCoversRuleNames(t *testing.T) {
	t.Parallel()

	price := 29.99
	record := admittableRecord()
	record.Description = "A widget."
	record.Model = "WP-100"
	record.OriginalPrice = &price
	record.Currency = "USD"
	record.Subcategory = "mice"

	names := []string{
		"title", "description", "brand", "model",
		"current_price", "original_price", "currency",
		"product_url", "category", "subcategory",
		"rating", "review_count", "images", "specifications",
	}
	for _, name := range names {
		if !fieldPresent(record, name) {
			t.Fatalf("fieldPresent(%q) = false for a fully populated record", name)
		}
	}
}

func TestPriceBandFallback(t *testing.T) {
	t.Parallel()

	curation := mustRules(t).Curation
	band := curation.PriceBandFor("odd-category")
	if band.Min != 1 || band.Max != 10000 {
		t.Fatalf("default band = %+v", band)
	}
}
