package pipeline

import (
	"reflect"
	"testing"
)

// bucketRecord builds records that share a fingerprint (same normalized
// brand, category and price band) while still differing on price, so
// pairwise scores stay meaningful.
func bucketRecord(platform, externalID string, price float64) Record {
	return Record{
		Platform:     platform,
		ExternalID:   externalID,
		Title:        "Widget Pro Wireless Mouse",
		Brand:        "Widget Co",
		Category:     "electronics",
		CurrentPrice: floatPtr(price),
	}
}

func TestGroupIdentityAlwaysGrouped(t *testing.T) {
	t.Parallel()

	// Same platform and external_id with wildly different prices: the
	// records land in different fingerprint buckets, and the score alone
	// would never qualify. Identity must still win.
	records := []Record{
		bucketRecord("amazon", "B0TEST123", 19.99),
		bucketRecord("amazon", "B0TEST123", 1999.99),
	}

	groups := NewGrouper(0.85, GroupGreedy, 1).Group(records)
	want := [][]int{{0, 1}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("Group() = %v, want %v", groups, want)
	}
}

func TestGroupDifferentFingerprintsNotCompared(t *testing.T) {
	t.Parallel()

	// Identical records except for the brand; fingerprints differ, so
	// the pair is skipped even with a threshold of zero-ish.
	a := bucketRecord("amazon", "A1", 19.99)
	b := bucketRecord("walmart", "W1", 19.99)
	b.Brand = "Gadget Ltd"

	groups := NewGrouper(0.1, GroupGreedy, 1).Group([]Record{a, b})
	if len(groups) != 0 {
		t.Fatalf("Group() = %v, want no groups across fingerprints", groups)
	}
}

func TestGroupRewordedTitleCrossPlatform(t *testing.T) {
	t.Parallel()

	// Same phone listed under two titles on two platforms, prices a few
	// dollars apart. The title rewording must not keep the pair from
	// being scored, and the score clears the default threshold.
	a := Record{
		Platform:     "amazon",
		ExternalID:   "B0PHONE13B",
		Title:        "Apple iPhone 13 128GB Blue",
		Brand:        "Apple",
		Category:     "electronics",
		CurrentPrice: floatPtr(699),
		Specifications: map[string]string{
			"Storage": "128 GB",
			"Color":   "Blue",
		},
	}
	b := Record{
		Platform:     "walmart",
		ExternalID:   "WM-77120034",
		Title:        "iPhone 13 (128GB) - Blue",
		Brand:        "Apple",
		Category:     "electronics",
		CurrentPrice: floatPtr(705),
		Specifications: map[string]string{
			"Storage": "128 GB",
			"Color":   "Blue",
		},
	}

	if score := Similarity(a, b); score < 0.85 {
		t.Fatalf("Similarity() = %v, want >= 0.85", score)
	}

	groups := NewGrouper(0.85, GroupGreedy, 1).Group([]Record{a, b})
	want := [][]int{{0, 1}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("Group() = %v, want %v", groups, want)
	}
}

func TestGroupCrossPlatformDuplicates(t *testing.T) {
	t.Parallel()

	records := []Record{
		bucketRecord("amazon", "B0TEST123", 100),
		bucketRecord("walmart", "WM-998877", 102),
		bucketRecord("ebay", "EB-112233", 480),
	}

	groups := NewGrouper(0.85, GroupGreedy, 1).Group(records)
	want := [][]int{{0, 1}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("Group() = %v, want %v", groups, want)
	}
}

// chainRecords builds three same-bucket records where adjacent pairs score
// above 0.84 but the outer pair does not.
func chainRecords() []Record {
	return []Record{
		bucketRecord("amazon", "A1", 100),
		bucketRecord("walmart", "W1", 115),
		bucketRecord("ebay", "E1", 132),
	}
}

func TestGroupGreedyChain(t *testing.T) {
	t.Parallel()

	groups := NewGrouper(0.84, GroupGreedy, 1).Group(chainRecords())
	want := [][]int{{0, 1}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("greedy Group() = %v, want %v", groups, want)
	}
}

func TestGroupTransitiveChain(t *testing.T) {
	t.Parallel()

	groups := NewGrouper(0.84, GroupTransitive, 1).Group(chainRecords())
	want := [][]int{{0, 1, 2}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("transitive Group() = %v, want %v", groups, want)
	}
}

func TestGroupIdempotent(t *testing.T) {
	t.Parallel()

	grouper := NewGrouper(0.85, GroupGreedy, 1)
	records := []Record{
		bucketRecord("amazon", "A1", 100),
		bucketRecord("walmart", "W1", 101),
		bucketRecord("ebay", "E1", 99),
	}

	first := grouper.Group(records)
	second := grouper.Group(records)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Group() not idempotent: %v vs %v", first, second)
	}
}

func TestGroupParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	var records []Record
	// Several independent buckets, each with an internal duplicate pair.
	titles := []string{
		"Widget Pro Wireless Mouse",
		"Widget Air Laptop Stand",
		"Widget Max Noise Cancelling Headphones",
		"Widget Mini Desk Lamp",
	}
	for i, title := range titles {
		a := bucketRecord("amazon", "A"+title, float64(50+i*100))
		a.Title = title
		b := bucketRecord("walmart", "W"+title, float64(50+i*100))
		b.Title = title
		records = append(records, a, b)
	}

	serial := NewGrouper(0.85, GroupGreedy, 1).Group(records)
	parallel := NewGrouper(0.85, GroupGreedy, 4).Group(records)
	if !reflect.DeepEqual(serial, parallel) {
		t.Fatalf("parallel Group() = %v, serial = %v", parallel, serial)
	}
	if len(serial) != len(titles) {
		t.Fatalf("Group() found %d groups, want %d", len(serial), len(titles))
	}
}

func TestGroupSingleRecord(t *testing.T) {
	t.Parallel()

	if groups := NewGrouper(0.85, GroupGreedy, 1).Group([]Record{bucketRecord("amazon", "A1", 10)}); groups != nil {
		t.Fatalf("Group(single) = %v, want nil", groups)
	}
}

func TestParseGroupingMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseGroupingMode("")
	if err != nil || mode != GroupGreedy {
		t.Fatalf("ParseGroupingMode(empty) = %q, %v", mode, err)
	}
	mode, err = ParseGroupingMode(" Transitive ")
	if err != nil || mode != GroupTransitive {
		t.Fatalf("ParseGroupingMode(transitive) = %q, %v", mode, err)
	}
	if _, err := ParseGroupingMode("clustered"); err == nil {
		t.Fatalf("ParseGroupingMode(clustered) should fail")
	}
}
