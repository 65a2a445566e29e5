package pipeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"horse.fit/shelf/internal/langdetect"
	"horse.fit/shelf/internal/reader"
	"horse.fit/shelf/internal/rules"
)

// requiredFields are the fields the normalizer itself must be able to
// derive; anything less is an incomplete record regardless of curation
// configuration.
var requiredFields = []string{"title", "current_price", "product_url"}

var (
	ratingPattern      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	reviewCountPattern = regexp.MustCompile(`\d[\d,]*`)
)

// Normalizer converts raw scraped records into the canonical Record shape.
// It is a pure transform: safe for concurrent use across records.
type Normalizer struct {
	rules  *rules.Set
	policy MultiValuePolicy
}

func NewNormalizer(ruleSet *rules.Set, policy MultiValuePolicy) *Normalizer {
	if policy == "" {
		policy = MultiValueFirst
	}
	return &Normalizer{
		rules:  ruleSet,
		policy: policy,
	}
}

// Normalize derives a Record from one RawRecord, or returns
// *IncompleteRecordError when title, current_price or product_url cannot
// be derived. Malformed optional fields degrade to absent, never to an
// error.
func (n *Normalizer) Normalize(raw RawRecord) (Record, error) {
	record := Record{
		ExternalID:   strings.TrimSpace(raw.ExternalID),
		Platform:     strings.ToLower(strings.TrimSpace(raw.Platform)),
		ScrapedAt:    raw.ScrapedAt.UTC(),
		SourceSpider: strings.TrimSpace(raw.SourceSpider),
	}

	var missing []string

	title, ok, err := raw.scalar("title", n.policy)
	if err != nil || !ok || cleanText(title) == "" {
		missing = append(missing, "title")
	} else {
		record.Title = cleanText(title)
	}

	productURL, ok, err := raw.scalar("product_url", n.policy)
	if err != nil || !ok || strings.TrimSpace(productURL) == "" {
		missing = append(missing, "product_url")
	} else {
		record.ProductURL = strings.TrimSpace(productURL)
	}

	priceRaw, ok, err := raw.scalar("current_price", n.policy)
	if err != nil || !ok {
		missing = append(missing, "current_price")
	} else if price, parseErr := parsePrice(priceRaw); parseErr != nil {
		missing = append(missing, "current_price")
	} else {
		record.CurrentPrice = &price
	}

	if len(missing) > 0 {
		return Record{}, &IncompleteRecordError{Missing: missing}
	}

	if value, ok, _ := raw.scalar("description", n.policy); ok {
		record.Description = reader.ExtractDescription(value, record.ProductURL)
	}
	if value, ok, _ := raw.scalar("brand", n.policy); ok {
		record.Brand = cleanText(value)
	}
	if value, ok, _ := raw.scalar("model", n.policy); ok {
		record.Model = cleanText(value)
	}

	if value, ok, _ := raw.scalar("original_price", n.policy); ok {
		if price, err := parsePrice(value); err == nil {
			record.OriginalPrice = &price
		}
	}

	record.Currency = "USD"
	if value, ok, _ := raw.scalar("currency", n.policy); ok && strings.TrimSpace(value) != "" {
		record.Currency = strings.ToUpper(strings.TrimSpace(value))
	}

	availability, _, _ := raw.firstScalar(n.policy, "availability_status", "availability")
	record.Availability = n.normalizeAvailability(availability)

	if value, ok, _ := raw.scalar("rating", n.policy); ok {
		record.Rating = parseRating(value)
	}
	if value, ok, _ := raw.scalar("review_count", n.policy); ok {
		record.ReviewCount = parseReviewCount(value)
	}

	if value, ok, _ := raw.scalar("category", n.policy); ok {
		record.Category = n.rules.CanonicalCategory(cleanText(value))
	}
	if value, ok, _ := raw.scalar("subcategory", n.policy); ok {
		record.Subcategory = n.rules.CanonicalCategory(cleanText(value))
	}

	record.Images = n.normalizeImages(raw.images())
	record.Specifications = normalizeSpecifications(raw.specifications())
	record.Variations = n.normalizeVariations(raw.variations())

	record.DiscountPercentage = discountPercentage(record.CurrentPrice, record.OriginalPrice)
	record.Language = langdetect.DetectISO6391(record.Title + " " + record.Description)

	return record, nil
}

// parsePrice strips everything but digits and separators, then decides the
// decimal convention: both separators present means comma is a thousands
// separator; a lone comma followed by at most two digits is a European
// decimal comma; remaining commas are thousands separators.
func parsePrice(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, strconv.ErrSyntax
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		lastComma := strings.LastIndex(cleaned, ",")
		if len(cleaned)-lastComma-1 <= 2 {
			cleaned = strings.ReplaceAll(cleaned[:lastComma], ",", "") + "." + cleaned[lastComma+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if value < 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, strconv.ErrRange
	}
	return value, nil
}

// parseRating extracts the first decimal number; values above 5 are assumed
// to be on a 10-point scale and halved, and the result is clamped to [0, 5].
func parseRating(raw string) *float64 {
	match := ratingPattern.FindString(raw)
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	if value > 5 {
		value = value / 2
	}
	value = math.Max(0, math.Min(5, value))
	return &value
}

func parseReviewCount(raw string) *int {
	match := reviewCountPattern.FindString(raw)
	if match == "" {
		return nil
	}
	value, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil || value < 0 {
		return nil
	}
	return &value
}

// availabilityOrder pins the matching order: "unavailable" must hit
// out_of_stock before its "available" substring can hit in_stock.
var availabilityOrder = []Availability{
	AvailabilityOutOfStock,
	AvailabilityPreOrder,
	AvailabilityLimitedStock,
	AvailabilityInStock,
}

func (n *Normalizer) normalizeAvailability(raw string) Availability {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return AvailabilityUnknown
	}

	for _, state := range availabilityOrder {
		for _, keyword := range n.rules.Availability[string(state)] {
			if strings.Contains(lower, strings.ToLower(keyword)) {
				return state
			}
		}
	}
	return AvailabilityUnknown
}

var imageTypes = map[string]struct{}{
	"primary":   {},
	"thumbnail": {},
	"gallery":   {},
	"zoom":      {},
}

func (n *Normalizer) normalizeImages(raw []rawImage) []Image {
	images := make([]Image, 0, len(raw))
	for _, img := range raw {
		url := strings.TrimSpace(img.URL)
		if url == "" {
			continue
		}
		imageType := strings.ToLower(strings.TrimSpace(img.Type))
		if _, known := imageTypes[imageType]; !known {
			imageType = "gallery"
		}
		images = append(images, Image{
			URL:     url,
			Type:    imageType,
			AltText: cleanText(img.AltText),
		})
	}
	if len(images) == 0 {
		return nil
	}
	return images
}

func normalizeSpecifications(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	specs := make(map[string]string, len(raw))
	for name, value := range raw {
		cleanName := cleanText(name)
		cleanValue := cleanText(value)
		if cleanName == "" || cleanValue == "" {
			continue
		}
		specs[cleanName] = cleanValue
	}
	if len(specs) == 0 {
		return nil
	}
	return specs
}

func (n *Normalizer) normalizeVariations(raw []rawVariation) []Variation {
	variations := make([]Variation, 0, len(raw))
	for _, v := range raw {
		variationType := strings.ToLower(strings.TrimSpace(v.Type))
		value := cleanText(v.Value)
		if variationType == "" || value == "" {
			continue
		}

		variation := Variation{
			Type:         variationType,
			Value:        value,
			Availability: AvailabilityInStock,
		}
		if priceText := stringifyScalar(v.Price); strings.TrimSpace(priceText) != "" {
			if price, err := parsePrice(priceText); err == nil {
				variation.Price = &price
			}
		}
		if strings.TrimSpace(v.Availability) != "" {
			variation.Availability = n.normalizeAvailability(v.Availability)
		}
		variations = append(variations, variation)
	}
	if len(variations) == 0 {
		return nil
	}
	return variations
}

func discountPercentage(current, original *float64) float64 {
	if current == nil || original == nil {
		return 0
	}
	if *original <= *current || *current <= 0 {
		return 0
	}
	discount := (*original - *current) / *original * 100
	return math.Round(discount*100) / 100
}
