package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MultiValuePolicy decides what happens when a field that should be scalar
// arrives as a sequence with more than one element. The extraction layer
// wraps most scalars in single-element arrays, so unwrapping one element is
// always safe; longer sequences are upstream schema drift.
type MultiValuePolicy string

const (
	// MultiValueFirst keeps the first element and drops the rest.
	MultiValueFirst MultiValuePolicy = "first"
	// MultiValueReject treats the field as underivable.
	MultiValueReject MultiValuePolicy = "reject"
)

func ParseMultiValuePolicy(raw string) (MultiValuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(MultiValueFirst):
		return MultiValueFirst, nil
	case string(MultiValueReject):
		return MultiValueReject, nil
	default:
		return "", fmt.Errorf("unknown multi-value policy %q", raw)
	}
}

// RawRecord is one scraped product as handed over by the ingest ledger:
// trusted identity metadata plus an untrusted bag of raw fields.
type RawRecord struct {
	Platform     string
	ExternalID   string
	SourceSpider string
	ScrapedAt    time.Time
	Fields       map[string]json.RawMessage
}

var errMultiValued = fmt.Errorf("field has multiple values")

// scalarValue resolves the scalar-or-sequence ambiguity for one raw field.
// The second return reports presence: absent fields, nulls, empty arrays
// and non-scalar shapes all come back as not present.
func scalarValue(raw json.RawMessage, policy MultiValuePolicy) (string, bool, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, true, nil
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String(), true, nil
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		if asBool {
			return "true", true, nil
		}
		return "false", true, nil
	}

	var asSeq []json.RawMessage
	if err := json.Unmarshal(raw, &asSeq); err == nil {
		if len(asSeq) == 0 {
			return "", false, nil
		}
		if len(asSeq) > 1 && policy == MultiValueReject {
			return "", false, errMultiValued
		}
		// Sequences never nest in practice; one unwrap level is enough.
		return scalarValue(asSeq[0], MultiValueFirst)
	}

	return "", false, nil
}

func (r RawRecord) scalar(name string, policy MultiValuePolicy) (string, bool, error) {
	raw, ok := r.Fields[name]
	if !ok {
		return "", false, nil
	}
	return scalarValue(raw, policy)
}

// firstScalar returns the first present field among names.
func (r RawRecord) firstScalar(policy MultiValuePolicy, names ...string) (string, bool, error) {
	for _, name := range names {
		value, ok, err := r.scalar(name, policy)
		if err != nil {
			return "", false, err
		}
		if ok {
			return value, true, nil
		}
	}
	return "", false, nil
}

type rawImage struct {
	URL     string `json:"url"`
	Type    string `json:"type"`
	AltText string `json:"alt_text"`
}

func (r RawRecord) images() []rawImage {
	raw, ok := r.Fields["images"]
	if !ok {
		return nil
	}

	var structured []rawImage
	if err := json.Unmarshal(raw, &structured); err == nil {
		return structured
	}

	// Some spiders emit bare URL strings instead of image objects.
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		images := make([]rawImage, 0, len(urls))
		for _, u := range urls {
			images = append(images, rawImage{URL: u})
		}
		return images
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return []rawImage{{URL: single}}
	}

	return nil
}

type rawSpec struct {
	Name  string `json:"spec_name"`
	Value string `json:"spec_value"`
}

func (r RawRecord) specifications() map[string]string {
	raw, ok := r.Fields["specifications"]
	if !ok {
		return nil
	}

	flat := map[string]string{}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for name, value := range asMap {
			flat[name] = stringifyScalar(value)
		}
		return flat
	}

	var asList []rawSpec
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, spec := range asList {
			flat[spec.Name] = spec.Value
		}
		return flat
	}

	return nil
}

type rawVariation struct {
	Type         string `json:"type"`
	Value        string `json:"value"`
	Price        any    `json:"price"`
	Availability string `json:"availability"`
}

func (r RawRecord) variations() []rawVariation {
	raw, ok := r.Fields["variations"]
	if !ok {
		return nil
	}

	var structured []rawVariation
	if err := json.Unmarshal(raw, &structured); err == nil {
		return structured
	}
	return nil
}

func stringifyScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
