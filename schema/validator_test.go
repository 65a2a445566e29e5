package productschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func validPayload() string {
	return `{
		"payload_version": "v1",
		"platform": "amazon",
		"external_id": "B0TEST123",
		"source_spider": "amazon_products",
		"scraped_at": "2026-03-01T10:00:00Z",
		"fields": {
			"title": ["Widget Pro Wireless Mouse"],
			"current_price": "$19.99",
			"product_url": "https://example.com/widget"
		}
	}`
}

func TestValidateProductPayload(t *testing.T) {
	t.Parallel()

	item, err := ValidateProductPayload(json.RawMessage(validPayload()))
	if err != nil {
		t.Fatalf("ValidateProductPayload() failed: %v", err)
	}
	if item.Platform != "amazon" {
		t.Fatalf("Platform = %q, want amazon", item.Platform)
	}
	if item.ExternalID != "B0TEST123" {
		t.Fatalf("ExternalID = %q", item.ExternalID)
	}
	if item.ScrapedAt == nil || *item.ScrapedAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("ScrapedAt = %v", item.ScrapedAt)
	}
	if _, ok := item.Fields["title"]; !ok {
		t.Fatalf("Fields is missing title")
	}
}

func TestValidateProductPayloadWrongVersion(t *testing.T) {
	t.Parallel()

	payload := strings.Replace(validPayload(), `"v1"`, `"v2"`, 1)
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(v2) should fail")
	}
}

func TestValidateProductPayloadMissingPlatform(t *testing.T) {
	t.Parallel()

	payload := `{
		"payload_version": "v1",
		"external_id": "B0TEST123",
		"fields": {"title": "Widget"}
	}`
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(no platform) should fail")
	}
}

func TestValidateProductPayloadEmptyFields(t *testing.T) {
	t.Parallel()

	payload := `{
		"payload_version": "v1",
		"platform": "amazon",
		"external_id": "B0TEST123",
		"fields": {}
	}`
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(empty fields) should fail")
	}
}

func TestValidateProductPayloadTrailingContent(t *testing.T) {
	t.Parallel()

	payload := validPayload() + `{"extra": true}`
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(trailing JSON) should fail")
	}
}

func TestValidateProductPayloadBadScrapedAt(t *testing.T) {
	t.Parallel()

	payload := strings.Replace(validPayload(), "2026-03-01T10:00:00Z", "yesterday-ish", 1)
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(bad scraped_at) should fail")
	}
}

func TestValidateProductPayloadBadProductURL(t *testing.T) {
	t.Parallel()

	payload := strings.Replace(validPayload(), "https://example.com/widget", "not a url", 1)
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(bad product_url) should fail")
	}
}

func TestValidateProductPayloadUnknownTopLevelKey(t *testing.T) {
	t.Parallel()

	payload := strings.Replace(validPayload(), `"payload_version"`, `"surprise": 1, "payload_version"`, 1)
	if _, err := ValidateProductPayload(json.RawMessage(payload)); err == nil {
		t.Fatalf("ValidateProductPayload(unknown key) should fail")
	}
}

func TestValidateProductPayloadNotJSON(t *testing.T) {
	t.Parallel()

	if _, err := ValidateProductPayload(json.RawMessage("not json at all")); err == nil {
		t.Fatalf("ValidateProductPayload(garbage) should fail")
	}
	if _, err := ValidateProductPayload(json.RawMessage("  ")); err == nil {
		t.Fatalf("ValidateProductPayload(blank) should fail")
	}
}
