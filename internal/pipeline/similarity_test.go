package pipeline

import (
	"math"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func TestSimilarityReflexive(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	if got := Similarity(record, record); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("Similarity(r, r) = %v, want 1.0", got)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	a := admittableRecord()
	b := admittableRecord()
	b.Platform = "walmart"
	b.Title = "Widget Pro Mouse Wireless"
	b.CurrentPrice = floatPtr(21.49)

	left := Similarity(a, b)
	right := Similarity(b, a)
	if math.Abs(left-right) > 1e-9 {
		t.Fatalf("Similarity not symmetric: %v vs %v", left, right)
	}
}

func TestSimilarityCrossPlatformMatch(t *testing.T) {
	t.Parallel()

	a := admittableRecord()
	b := admittableRecord()
	b.Platform = "walmart"
	b.ExternalID = "WM-998877"

	if got := Similarity(a, b); got < 0.85 {
		t.Fatalf("Similarity(identical cross-platform) = %v, want >= 0.85", got)
	}
}

func TestSimilarityDifferentProducts(t *testing.T) {
	t.Parallel()

	a := admittableRecord()
	a.Title = "Widget Phone 13 Pro 128GB"
	a.CurrentPrice = floatPtr(999)
	b := admittableRecord()
	b.Platform = "walmart"
	b.Title = "Widget Toaster 2-Slice Stainless"
	b.CurrentPrice = floatPtr(39)
	b.Specifications = map[string]string{"Wattage": "900 W"}

	if got := Similarity(a, b); got >= 0.85 {
		t.Fatalf("Similarity(different products) = %v, want < 0.85", got)
	}
}

func TestTextSimilarityHandlesReordering(t *testing.T) {
	t.Parallel()

	// Character-sequence ratio alone undervalues reordered words; the
	// word-set fallback recovers them.
	if got := textSimilarity("Wireless Mouse", "Mouse Wireless"); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("textSimilarity(reordered) = %v, want 1.0", got)
	}
}

func TestTextSimilarityEmpty(t *testing.T) {
	t.Parallel()

	if got := textSimilarity("", "Widget"); got != 0 {
		t.Fatalf("textSimilarity(empty, x) = %v, want 0", got)
	}
}

func TestPriceSimilarityPiecewise(t *testing.T) {
	t.Parallel()

	cases := []struct {
		p1, p2 float64
		want   float64
	}{
		{100, 100, 1},
		{100, 105, 1 - 5.0/102.5},
		{100, 115, 0.8 - (15.0/107.5-0.1)*2},
		{100, 132, 0.6 - (32.0/116.0-0.2)*2},
		{100, 300, 0},
	}
	for _, tc := range cases {
		got := priceSimilarity(&tc.p1, &tc.p2)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("priceSimilarity(%v, %v) = %v, want %v", tc.p1, tc.p2, got, tc.want)
		}
	}
}

func TestPriceSimilarityMissing(t *testing.T) {
	t.Parallel()

	price := 10.0
	if got := priceSimilarity(nil, &price); got != 0 {
		t.Fatalf("priceSimilarity(nil, x) = %v, want 0", got)
	}
}

func TestSpecsSimilaritySharedKeysOnly(t *testing.T) {
	t.Parallel()

	left := map[string]string{"Color": "Black", "Weight": "95 g"}
	right := map[string]string{"color": "black", "Connectivity": "Bluetooth"}

	if got := specsSimilarity(left, right); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("specsSimilarity() = %v, want 1.0 over the shared key", got)
	}
}

func TestSpecsSimilarityNoOverlap(t *testing.T) {
	t.Parallel()

	left := map[string]string{"Color": "Black"}
	right := map[string]string{"Wattage": "900 W"}
	if got := specsSimilarity(left, right); got != 0 {
		t.Fatalf("specsSimilarity(disjoint) = %v, want 0", got)
	}
	if got := specsSimilarity(nil, right); got != 0 {
		t.Fatalf("specsSimilarity(nil) = %v, want 0", got)
	}
}

func TestWordJaccard(t *testing.T) {
	t.Parallel()

	got := wordJaccard("apple iphone 13", "iphone 13")
	if math.Abs(got-2.0/3.0) > 1e-9 {
		t.Fatalf("wordJaccard() = %v, want 2/3", got)
	}
}
