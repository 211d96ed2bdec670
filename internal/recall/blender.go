package recall

import (
	"math"
	"sort"
)

// blendList is one strategy's output plus its read cursor during a
// blend pass.
type blendList struct {
	ids  []string
	pos  int
	take int
}

// remaining counts not-yet-consumed entries. Consumed-but-duplicate
// entries are already past the cursor.
func (l *blendList) remaining() int {
	return len(l.ids) - l.pos
}

// Blend merges three strategy outputs into one deduplicated candidate
// list of at most targetSize ids.
//
// Each strategy first contributes up to round(targetSize*ratio) ids in
// its own rank order; duplicates admitted by an earlier strategy are
// skipped, with priority vector, rule, collaborative. If the quota pass
// leaves the result short, the remainder is backfilled round-robin,
// each round starting from the strategy with the most unused
// candidates, until targetSize is reached or every list is exhausted.
// First-admitted order is preserved.
func Blend(vector, rule, collab []string, quota Quota, targetSize int) []string {
	if targetSize <= 0 {
		return nil
	}

	lists := []*blendList{
		{ids: vector, take: int(math.Round(float64(targetSize) * quota.Vector))},
		{ids: rule, take: int(math.Round(float64(targetSize) * quota.Rule))},
		{ids: collab, take: int(math.Round(float64(targetSize) * quota.Collaborative))},
	}

	admitted := make([]string, 0, targetSize)
	seen := make(map[string]struct{}, targetSize)

	admit := func(l *blendList) bool {
		for l.pos < len(l.ids) {
			id := l.ids[l.pos]
			l.pos++
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			admitted = append(admitted, id)
			return true
		}
		return false
	}

	// Quota pass.
	for _, l := range lists {
		for taken := 0; taken < l.take && len(admitted) < targetSize; taken++ {
			if !admit(l) {
				break
			}
		}
	}

	// Backfill pass.
	for len(admitted) < targetSize {
		order := make([]*blendList, 0, len(lists))
		for _, l := range lists {
			if l.remaining() > 0 {
				order = append(order, l)
			}
		}
		if len(order) == 0 {
			break
		}
		sort.SliceStable(order, func(i, j int) bool {
			return order[i].remaining() > order[j].remaining()
		})
		for _, l := range order {
			if len(admitted) == targetSize {
				break
			}
			admit(l)
		}
	}

	return admitted
}
