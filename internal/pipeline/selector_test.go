package pipeline

import (
	"math"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestCanonicalScoreFullRecord(t *testing.T) {
	t.Parallel()

	record := Record{
		Title:        "Widget Pro Wireless Mouse",
		Brand:        "Widget Co",
		Description:  "A mouse.",
		CurrentPrice: floatPtr(19.99),
		Rating:       floatPtr(5),
		ReviewCount:  intPtr(1000),
		Images: []Image{
			{URL: "1"}, {URL: "2"}, {URL: "3"}, {URL: "4"}, {URL: "5"},
		},
		Specifications: map[string]string{
			"a": "1", "b": "2", "c": "3", "d": "4", "e": "5",
			"f": "6", "g": "7", "h": "8", "i": "9", "j": "10",
		},
	}

	if got := CanonicalScore(record); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("CanonicalScore(full) = %v, want 1.0", got)
	}
}

func TestCanonicalScoreArithmetic(t *testing.T) {
	t.Parallel()

	// Half-complete record: title and price filled, rating 4.0,
	// 500 reviews, 2 images, 5 specs.
	record := Record{
		Title:        "Widget",
		CurrentPrice: floatPtr(19.99),
		Rating:       floatPtr(4),
		ReviewCount:  intPtr(500),
		Images:       []Image{{URL: "1"}, {URL: "2"}},
		Specifications: map[string]string{
			"a": "1", "b": "2", "c": "3", "d": "4", "e": "5",
		},
	}

	want := 0.5*0.3 + 0.8*0.3 + 0.5*0.2 + 0.4*0.1 + 0.5*0.1
	if got := CanonicalScore(record); math.Abs(got-want) > 1e-9 {
		t.Fatalf("CanonicalScore() = %v, want %v", got, want)
	}
}

func TestCanonicalScoreCapsCounts(t *testing.T) {
	t.Parallel()

	record := Record{
		ReviewCount: intPtr(250000),
		Images: []Image{
			{URL: "1"}, {URL: "2"}, {URL: "3"}, {URL: "4"},
			{URL: "5"}, {URL: "6"}, {URL: "7"},
		},
	}

	want := 0.2 + 0.1
	if got := CanonicalScore(record); math.Abs(got-want) > 1e-9 {
		t.Fatalf("CanonicalScore(capped) = %v, want %v", got, want)
	}
}

func TestSelectCanonicalPicksHighestScore(t *testing.T) {
	t.Parallel()

	sparse := Record{Title: "Widget"}
	rich := Record{
		Title:        "Widget",
		Brand:        "Widget Co",
		Description:  "A widget.",
		CurrentPrice: floatPtr(19.99),
		Rating:       floatPtr(4.5),
		ReviewCount:  intPtr(900),
	}

	records := []Record{sparse, rich, sparse}
	if got := SelectCanonical(records, []int{0, 1, 2}); got != 1 {
		t.Fatalf("SelectCanonical() = %d, want 1", got)
	}
}

func TestSelectCanonicalFirstSeenWinsTies(t *testing.T) {
	t.Parallel()

	record := admittableRecord()
	records := []Record{record, record, record}
	if got := SelectCanonical(records, []int{0, 1, 2}); got != 0 {
		t.Fatalf("SelectCanonical(tie) = %d, want the earliest index", got)
	}

	// Membership order decides, not absolute index order.
	if got := SelectCanonical(records, []int{2, 1}); got != 2 {
		t.Fatalf("SelectCanonical(tie, reordered members) = %d, want 2", got)
	}
}

func TestSelectCanonicalEmpty(t *testing.T) {
	t.Parallel()

	if got := SelectCanonical(nil, nil); got != -1 {
		t.Fatalf("SelectCanonical(empty) = %d, want -1", got)
	}
}
