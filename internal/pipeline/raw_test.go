package pipeline

import (
	"encoding/json"
	"testing"
)

func TestScalarValueShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{`"Widget"`, "Widget", true},
		{`19.99`, "19.99", true},
		{`true`, "true", true},
		{`null`, "", false},
		{`[]`, "", false},
		{`["Widget"]`, "Widget", true},
		{`[19.99]`, "19.99", true},
		{`{"nested": 1}`, "", false},
	}
	for _, tc := range cases {
		got, ok, err := scalarValue(json.RawMessage(tc.raw), MultiValueFirst)
		if err != nil {
			t.Fatalf("scalarValue(%s) failed: %v", tc.raw, err)
		}
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("scalarValue(%s) = %q, %v, want %q, %v", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestScalarValueMultiElement(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`["first", "second"]`)

	got, ok, err := scalarValue(raw, MultiValueFirst)
	if err != nil || !ok || got != "first" {
		t.Fatalf("scalarValue(first policy) = %q, %v, %v", got, ok, err)
	}

	if _, _, err := scalarValue(raw, MultiValueReject); err == nil {
		t.Fatalf("scalarValue(reject policy) should fail on multiple values")
	}
}

func TestFirstScalarFallsThrough(t *testing.T) {
	t.Parallel()

	record := RawRecord{Fields: map[string]json.RawMessage{
		"availability": json.RawMessage(`"In Stock"`),
	}}

	value, ok, err := record.firstScalar(MultiValueFirst, "availability_status", "availability")
	if err != nil || !ok || value != "In Stock" {
		t.Fatalf("firstScalar() = %q, %v, %v", value, ok, err)
	}
}

func TestSpecificationsListForm(t *testing.T) {
	t.Parallel()

	record := RawRecord{Fields: map[string]json.RawMessage{
		"specifications": json.RawMessage(`[{"spec_name": "Color", "spec_value": "Black"}]`),
	}}

	specs := record.specifications()
	if specs["Color"] != "Black" {
		t.Fatalf("specifications() = %v", specs)
	}
}

func TestSpecificationsMapFormStringifiesValues(t *testing.T) {
	t.Parallel()

	record := RawRecord{Fields: map[string]json.RawMessage{
		"specifications": json.RawMessage(`{"Weight": 95.5, "Wireless": true}`),
	}}

	specs := record.specifications()
	if specs["Weight"] != "95.5" {
		t.Fatalf("specifications()[Weight] = %q, want 95.5", specs["Weight"])
	}
	if specs["Wireless"] != "true" {
		t.Fatalf("specifications()[Wireless] = %q, want true", specs["Wireless"])
	}
}

func TestParseMultiValuePolicy(t *testing.T) {
	t.Parallel()

	policy, err := ParseMultiValuePolicy("")
	if err != nil || policy != MultiValueFirst {
		t.Fatalf("ParseMultiValuePolicy(empty) = %q, %v", policy, err)
	}
	policy, err = ParseMultiValuePolicy(" REJECT ")
	if err != nil || policy != MultiValueReject {
		t.Fatalf("ParseMultiValuePolicy(reject) = %q, %v", policy, err)
	}
	if _, err := ParseMultiValuePolicy("last"); err == nil {
		t.Fatalf("ParseMultiValuePolicy(last) should fail")
	}
}
