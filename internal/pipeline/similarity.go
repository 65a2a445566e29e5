package pipeline

import (
	"math"
	"strings"
)

const (
	titleWeight = 0.4
	brandWeight = 0.3
	priceWeight = 0.2
	specsWeight = 0.1

	// Below this sequence ratio the word-set Jaccard similarity is also
	// consulted; it recovers reorderings like "iPhone 13" vs
	// "Apple iPhone 13" that a character-sequence ratio undervalues.
	sequenceRatioFloor = 0.8
)

// Similarity scores two records in [0, 1] from title, brand, price and
// specification overlap. Symmetric, and 1.0 for a fully-populated record
// compared with itself.
func Similarity(a, b Record) float64 {
	score := textSimilarity(a.Title, b.Title) * titleWeight
	score += textSimilarity(a.Brand, b.Brand) * brandWeight
	score += priceSimilarity(a.CurrentPrice, b.CurrentPrice) * priceWeight
	score += specsSimilarity(a.Specifications, b.Specifications) * specsWeight
	return score
}

func textSimilarity(left, right string) float64 {
	normLeft := normalizeForMatch(left)
	normRight := normalizeForMatch(right)
	if normLeft == "" || normRight == "" {
		return 0
	}
	if normLeft == normRight {
		return 1
	}

	ratio := sequenceRatio(normLeft, normRight)
	if ratio < sequenceRatioFloor {
		ratio = math.Max(ratio, wordJaccard(normLeft, normRight))
	}
	return ratio
}

// sequenceRatio is a longest-common-subsequence ratio over runes:
// 2*LCS / (len(a)+len(b)), in [0, 1].
func sequenceRatio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

func wordJaccard(left, right string) float64 {
	leftSet := wordSet(left)
	rightSet := wordSet(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for word := range leftSet {
		if _, ok := rightSet[word]; ok {
			intersection++
		}
	}
	union := len(leftSet) + len(rightSet) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// priceSimilarity maps the relative price difference onto [0, 1] with a
// piecewise falloff: near-equal prices score close to 1, anything more
// than ~50% apart scores 0.
func priceSimilarity(p1, p2 *float64) float64 {
	if p1 == nil || p2 == nil {
		return 0
	}
	if *p1 == *p2 {
		return 1
	}

	avg := (*p1 + *p2) / 2
	if avg == 0 {
		return 0
	}
	d := math.Abs(*p1-*p2) / avg

	switch {
	case d <= 0.1:
		return 1 - d
	case d <= 0.2:
		return 0.8 - (d-0.1)*2
	default:
		return math.Max(0, 0.6-(d-0.2)*2)
	}
}

func specsSimilarity(left, right map[string]string) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	lowerLeft := lowerSpecMap(left)
	lowerRight := lowerSpecMap(right)

	total := 0.0
	shared := 0
	for name, leftValue := range lowerLeft {
		rightValue, ok := lowerRight[name]
		if !ok {
			continue
		}
		shared++
		total += textSimilarity(leftValue, rightValue)
	}
	if shared == 0 {
		return 0
	}
	return total / float64(shared)
}

func lowerSpecMap(specs map[string]string) map[string]string {
	lowered := make(map[string]string, len(specs))
	for name, value := range specs {
		lowered[strings.ToLower(name)] = strings.ToLower(value)
	}
	return lowered
}
