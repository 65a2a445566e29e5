package pipeline

const (
	completenessWeight = 0.3
	ratingWeightSel    = 0.3
	reviewsWeightSel   = 0.2
	imagesWeightSel    = 0.1
	specsWeightSel     = 0.1
)

// completenessFields counts title, brand, current price and description.
const completenessFields = 4

// SelectCanonical returns the index (within members) of the record that
// should represent the group. Members are batch-order indices into
// records; on an exact score tie the earliest index wins, so repeated
// runs over the same batch pick the same survivor.
func SelectCanonical(records []Record, members []int) int {
	if len(members) == 0 {
		return -1
	}
	best := members[0]
	bestScore := CanonicalScore(records[best])
	for _, idx := range members[1:] {
		score := CanonicalScore(records[idx])
		if score > bestScore {
			best = idx
			bestScore = score
		}
	}
	return best
}

// CanonicalScore measures how complete and trustworthy a record is.
// The score is in [0, 1].
func CanonicalScore(r Record) float64 {
	filled := 0
	if r.Title != "" {
		filled++
	}
	if r.Brand != "" {
		filled++
	}
	if r.CurrentPrice != nil {
		filled++
	}
	if r.Description != "" {
		filled++
	}
	completeness := float64(filled) / float64(completenessFields)

	rating := 0.0
	if r.Rating != nil {
		rating = *r.Rating / 5.0
	}

	reviews := 0.0
	if r.ReviewCount != nil {
		reviews = float64(*r.ReviewCount) / 1000.0
		if reviews > 1 {
			reviews = 1
		}
	}

	images := float64(len(r.Images)) / 5.0
	if images > 1 {
		images = 1
	}

	specs := float64(len(r.Specifications)) / 10.0
	if specs > 1 {
		specs = 1
	}

	return completeness*completenessWeight +
		rating*ratingWeightSel +
		reviews*reviewsWeightSel +
		images*imagesWeightSel +
		specs*specsWeightSel
}
