package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// GroupingMode selects how qualifying matches are combined into groups.
type GroupingMode string

const (
	// GroupGreedy is the single-pass mode: a record joins at most one
	// group, decided by its first qualifying match in batch order.
	GroupGreedy GroupingMode = "greedy"
	// GroupTransitive unions every qualifying pair, producing the
	// transitive closure instead of first-match groups.
	GroupTransitive GroupingMode = "transitive"
)

func ParseGroupingMode(raw string) (GroupingMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(GroupGreedy):
		return GroupGreedy, nil
	case string(GroupTransitive):
		return GroupTransitive, nil
	default:
		return "", fmt.Errorf("unknown grouping mode %q", raw)
	}
}

// Grouper partitions a batch of admitted records into duplicate groups.
// The caller provides the batch in its canonical order (scraped_at, then
// external_id); tie-breaking depends on it.
type Grouper struct {
	threshold float64
	mode      GroupingMode
	workers   int
}

func NewGrouper(threshold float64, mode GroupingMode, workers int) *Grouper {
	if threshold <= 0 {
		threshold = 0.85
	}
	if mode == "" {
		mode = GroupGreedy
	}
	if workers < 1 {
		workers = 1
	}
	return &Grouper{
		threshold: threshold,
		mode:      mode,
		workers:   workers,
	}
}

// Group returns disjoint groups of batch indices, each of size >= 2 and in
// batch order; unmatched records are non-duplicate by omission. Records in
// different fingerprint buckets are never compared, except that records
// sharing platform and external_id are always grouped regardless of
// fingerprint or score.
func (g *Grouper) Group(records []Record) [][]int {
	if len(records) < 2 {
		return nil
	}

	fingerprints := make([]string, len(records))
	for i, record := range records {
		fingerprints[i] = Fingerprint(record)
	}
	buckets := g.bucketize(records, fingerprints)

	var (
		mu     sync.Mutex
		groups [][]int
	)

	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for _, bucket := range buckets {
		members := bucket
		eg.Go(func() error {
			var found [][]int
			switch g.mode {
			case GroupTransitive:
				found = g.groupTransitive(records, fingerprints, members)
			default:
				found = g.groupGreedy(records, fingerprints, members)
			}
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			groups = append(groups, found...)
			mu.Unlock()
			return nil
		})
	}
	// Bucket workers never fail; Wait is only a join point.
	_ = eg.Wait()

	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
	return groups
}

// bucketize partitions batch indices by fingerprint, then merges buckets
// that share a (platform, external_id) identity so the identity fast path
// survives fingerprint drift (a price moving across a band boundary changes
// the fingerprint but not the identity).
func (g *Grouper) bucketize(records []Record, fingerprints []string) [][]int {
	bucketIndex := map[string]int{}
	parent := make([]int, 0, len(records))
	var buckets [][]int

	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	identityBucket := map[string]int{}
	for i, record := range records {
		fp := fingerprints[i]
		b, ok := bucketIndex[fp]
		if !ok {
			b = len(buckets)
			bucketIndex[fp] = b
			buckets = append(buckets, nil)
			parent = append(parent, b)
		}
		buckets[b] = append(buckets[b], i)

		identity := record.Platform + "\x00" + record.ExternalID
		if other, seen := identityBucket[identity]; seen {
			rootA, rootB := find(other), find(b)
			if rootA != rootB {
				if rootA > rootB {
					rootA, rootB = rootB, rootA
				}
				parent[rootB] = rootA
			}
		} else {
			identityBucket[identity] = b
		}
	}

	merged := map[int][]int{}
	for b, members := range buckets {
		root := find(b)
		merged[root] = append(merged[root], members...)
	}

	result := make([][]int, 0, len(merged))
	for _, members := range merged {
		sort.Ints(members)
		result = append(result, members)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i][0] < result[j][0]
	})
	return result
}

func (g *Grouper) groupGreedy(records []Record, fingerprints []string, members []int) [][]int {
	processed := make(map[int]bool, len(members))
	var groups [][]int

	for pos, i := range members {
		if processed[i] {
			continue
		}
		processed[i] = true
		group := []int{i}

		for _, j := range members[pos+1:] {
			if processed[j] {
				continue
			}
			if g.isDuplicate(records[i], records[j], fingerprints[i], fingerprints[j]) {
				group = append(group, j)
				processed[j] = true
			}
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

func (g *Grouper) groupTransitive(records []Record, fingerprints []string, members []int) [][]int {
	parent := make(map[int]int, len(members))
	for _, i := range members {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for pos, i := range members {
		for _, j := range members[pos+1:] {
			if !g.isDuplicate(records[i], records[j], fingerprints[i], fingerprints[j]) {
				continue
			}
			rootA, rootB := find(i), find(j)
			if rootA == rootB {
				continue
			}
			if rootA > rootB {
				rootA, rootB = rootB, rootA
			}
			parent[rootB] = rootA
		}
	}

	byRoot := map[int][]int{}
	for _, i := range members {
		root := find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	var groups [][]int
	for _, group := range byRoot {
		if len(group) < 2 {
			continue
		}
		sort.Ints(group)
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
	return groups
}

// isDuplicate applies the pair rules: identical platform and external_id
// are duplicates regardless of score; differing fingerprints are skipped
// without scoring; everything else is decided by the similarity threshold.
func (g *Grouper) isDuplicate(a, b Record, fpA, fpB string) bool {
	if a.Platform == b.Platform && a.ExternalID == b.ExternalID {
		return true
	}
	if fpA != fpB {
		return false
	}
	return Similarity(a, b) >= g.threshold
}
