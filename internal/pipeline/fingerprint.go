package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// importantSpecs are the attributes worth carrying into the fingerprint, at
// most one value each.
var importantSpecs = []string{
	"color", "size", "model", "capacity", "storage", "memory", "screen size", "weight",
}

// Fingerprint digests the stable identity signals of a record: normalized
// brand, category, a coarse price band and key specifications. Equal
// fingerprints gate the pairwise comparison; they never decide duplication
// on their own. The title stays out of the digest: sellers reword it
// freely, and reworded listings must still land in one bucket so the
// scorer can see them.
func Fingerprint(record Record) string {
	payload := map[string]any{
		"brand":      normalizeForMatch(record.Brand),
		"category":   normalizeForMatch(record.Category),
		"price_band": priceBandLabel(record.CurrentPrice),
		"key_specs":  keySpecs(record.Specifications),
	}

	// Map keys marshal in sorted order, so the digest input is canonical.
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func priceBandLabel(price *float64) string {
	if price == nil {
		return "unknown"
	}
	switch p := *price; {
	case p < 10:
		return "under_10"
	case p < 50:
		return "10_50"
	case p < 100:
		return "50_100"
	case p < 500:
		return "100_500"
	case p < 1000:
		return "500_1000"
	default:
		return "over_1000"
	}
}

// keySpecs picks one value per important attribute. Specification names are
// visited in sorted order so the first match is deterministic.
func keySpecs(specs map[string]string) map[string]string {
	if len(specs) == 0 {
		return map[string]string{}
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	selected := map[string]string{}
	for _, name := range names {
		lowerName := strings.ToLower(name)
		for _, important := range importantSpecs {
			if _, taken := selected[important]; taken {
				continue
			}
			if strings.Contains(lowerName, important) {
				selected[important] = strings.ToLower(specs[name])
				break
			}
		}
	}
	return selected
}
