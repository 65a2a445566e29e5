package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// PriceBand is the admissible price interval for a category.
type PriceBand struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Curation holds the thresholds applied by the curation filter.
type Curation struct {
	MinRating          float64              `yaml:"min_rating"`
	MinReviewCount     int                  `yaml:"min_review_count"`
	RequiredFields     []string             `yaml:"required_fields"`
	ExcludedCategories []string             `yaml:"excluded_categories"`
	BrandBlacklist     []string             `yaml:"brand_blacklist"`
	PriceBands         map[string]PriceBand `yaml:"price_bands"`
}

// requiredFieldNames are the record fields the curation filter can check
// for presence. Anything else in curation.required_fields is a typo that
// would otherwise reject every record.
var requiredFieldNames = map[string]struct{}{
	"title": {}, "description": {}, "brand": {}, "model": {},
	"current_price": {}, "original_price": {}, "currency": {},
	"product_url": {}, "category": {}, "subcategory": {},
	"rating": {}, "review_count": {}, "images": {}, "specifications": {},
}

// Set is the full rule set consumed by the pipeline: curation thresholds,
// the category synonym table and the availability keyword sets.
type Set struct {
	Curation         Curation            `yaml:"curation"`
	CategorySynonyms map[string][]string `yaml:"category_synonyms"`
	Availability     map[string][]string `yaml:"availability_keywords"`
}

// Default returns the embedded rule set.
func Default() (*Set, error) {
	return parse(defaultsYAML, "embedded defaults")
}

// Load returns the embedded rule set, replaced by the YAML file at path
// when path is non-empty.
func Load(path string) (*Set, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Default()
	}

	data, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", trimmed, err)
	}
	return parse(data, trimmed)
}

func parse(data []byte, origin string) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse rules YAML from %s: %w", origin, err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules from %s: %w", origin, err)
	}
	return &set, nil
}

func (s *Set) Validate() error {
	if s == nil {
		return fmt.Errorf("rule set is nil")
	}
	if s.Curation.MinRating < 0 || s.Curation.MinRating > 5 {
		return fmt.Errorf("curation.min_rating must be in [0, 5], got %g", s.Curation.MinRating)
	}
	if s.Curation.MinReviewCount < 0 {
		return fmt.Errorf("curation.min_review_count must be >= 0, got %d", s.Curation.MinReviewCount)
	}
	if len(s.Curation.RequiredFields) == 0 {
		return fmt.Errorf("curation.required_fields must not be empty")
	}
	for _, field := range s.Curation.RequiredFields {
		if _, ok := requiredFieldNames[strings.ToLower(strings.TrimSpace(field))]; !ok {
			return fmt.Errorf("curation.required_fields has unknown field %q", field)
		}
	}
	if _, ok := s.Curation.PriceBands["default"]; !ok {
		return fmt.Errorf("curation.price_bands must define a default band")
	}
	for category, band := range s.Curation.PriceBands {
		if band.Min < 0 {
			return fmt.Errorf("price band %s: min must be >= 0, got %g", category, band.Min)
		}
		if band.Max <= band.Min {
			return fmt.Errorf("price band %s: max (%g) must exceed min (%g)", category, band.Max, band.Min)
		}
	}
	for state := range s.Availability {
		switch state {
		case "in_stock", "out_of_stock", "pre_order", "limited_stock":
		default:
			return fmt.Errorf("availability_keywords has unknown state %q", state)
		}
	}
	return nil
}

// PriceBandFor returns the band for a category, falling back to default.
func (c Curation) PriceBandFor(category string) PriceBand {
	if band, ok := c.PriceBands[strings.ToLower(strings.TrimSpace(category))]; ok {
		return band
	}
	return c.PriceBands["default"]
}

// CanonicalCategory maps a raw category label through the synonym table.
// Unknown labels pass through unchanged.
func (s *Set) CanonicalCategory(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}

	lower := strings.ToLower(cleaned)
	for _, canonical := range sortedKeys(s.CategorySynonyms) {
		for _, synonym := range s.CategorySynonyms[canonical] {
			if strings.Contains(lower, strings.ToLower(synonym)) {
				return canonical
			}
		}
	}
	return cleaned
}

// sortedKeys keeps synonym lookup order stable when two canonical
// categories both match a label.
func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
