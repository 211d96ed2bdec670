// Package evaluation measures recall strategy quality against
// held-out relevance judgments, for offline tuning of quotas and
// weights.
package evaluation

import (
	"math"
	"sort"
)

// dcg sums graded relevance with logarithmic position discount over
// the first k positions.
func dcg(relevances []int, k int) float64 {
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += float64(relevances[i]) / math.Log2(float64(i+2))
	}
	return sum
}

// NDCG calculates Normalized Discounted Cumulative Gain at K.
func NDCG(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k == 0 {
		return 0
	}

	ideal := make([]int, len(relevances))
	copy(ideal, relevances)
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))

	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

// relevantIn counts judged-relevant entries in the first k positions.
func relevantIn(relevances []int, k, threshold int) int {
	n := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			n++
		}
	}
	return n
}

// Recall calculates Recall at K against the judged relevant set.
func Recall(relevances []int, k int, threshold int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}

	total := relevantIn(relevances, len(relevances), threshold)
	if total == 0 {
		return 0
	}
	return float64(relevantIn(relevances, k, threshold)) / float64(total)
}

// Precision calculates Precision at K.
func Precision(relevances []int, k int, threshold int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k == 0 {
		return 0
	}
	return float64(relevantIn(relevances, k, threshold)) / float64(k)
}

// MRR calculates the reciprocal rank of the first relevant dish.
func MRR(relevances []int, threshold int) float64 {
	for i, r := range relevances {
		if r >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision over the ranked list.
func AveragePrecision(relevances []int, threshold int) float64 {
	relevant := 0
	sumPrecision := 0.0
	for i, r := range relevances {
		if r >= threshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}
	if relevant == 0 {
		return 0
	}
	return sumPrecision / float64(relevant)
}
