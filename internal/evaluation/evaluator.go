package evaluation

import (
	"context"

	"github.com/dishcovery/dishcovery/internal/feature"
	"github.com/dishcovery/dishcovery/internal/recall"
)

// relevanceThreshold is the minimum judged relevance counted as a hit.
const relevanceThreshold = 1

// Evaluator runs recall strategies against historical judgment sets,
// bypassing the orchestrator so each strategy is measured in
// isolation.
type Evaluator struct {
	strategies []recall.Strategy
	judgments  map[string]map[string]int // userID -> dishID -> relevance
}

// NewEvaluator creates an evaluator over the given strategies.
func NewEvaluator(strategies ...recall.Strategy) *Evaluator {
	return &Evaluator{
		strategies: strategies,
		judgments:  make(map[string]map[string]int),
	}
}

// LoadJudgments loads relevance judgments.
func (e *Evaluator) LoadJudgments(judgments []Judgment) {
	for _, j := range judgments {
		if e.judgments[j.UserID] == nil {
			e.judgments[j.UserID] = make(map[string]int)
		}
		e.judgments[j.UserID][j.DishID] = j.Relevance
	}
}

// EvaluateUser runs every strategy for one user and scores each ranked
// list against the user's judgments.
func (e *Evaluator) EvaluateUser(ctx context.Context, user *feature.UserFeatures, poolSize int, ks []int) ([]*Result, error) {
	userJudgments := e.judgments[user.UserID]

	results := make([]*Result, 0, len(e.strategies))
	for _, s := range e.strategies {
		ids, err := s.Recall(ctx, user, poolSize)
		if err != nil {
			return nil, err
		}

		relevances := make([]int, len(ids))
		for i, id := range ids {
			relevances[i] = userJudgments[id]
		}

		result := &Result{
			UserID:      user.UserID,
			Strategy:    s.Name(),
			NDCG:        make(map[int]float64),
			Recall:      make(map[int]float64),
			Precision:   make(map[int]float64),
			MRR:         MRR(relevances, relevanceThreshold),
			AP:          AveragePrecision(relevances, relevanceThreshold),
			ResultCount: len(ids),
		}
		for _, k := range ks {
			result.NDCG[k] = NDCG(relevances, k)
			result.Recall[k] = Recall(relevances, k, relevanceThreshold)
			result.Precision[k] = Precision(relevances, k, relevanceThreshold)
		}
		results = append(results, result)
	}
	return results, nil
}

// Summarize aggregates per-user results into per-strategy means,
// ordered by the evaluator's strategy order.
func (e *Evaluator) Summarize(results []*Result) []*Summary {
	byStrategy := make(map[string][]*Result)
	for _, r := range results {
		byStrategy[r.Strategy] = append(byStrategy[r.Strategy], r)
	}

	summaries := make([]*Summary, 0, len(e.strategies))
	for _, s := range e.strategies {
		group := byStrategy[s.Name()]
		if len(group) == 0 {
			continue
		}

		summary := &Summary{
			Strategy:      s.Name(),
			UserCount:     len(group),
			MeanNDCG:      make(map[int]float64),
			MeanRecall:    make(map[int]float64),
			MeanPrecision: make(map[int]float64),
		}
		for _, r := range group {
			summary.MeanMRR += r.MRR
			summary.MAP += r.AP
			for k, v := range r.NDCG {
				summary.MeanNDCG[k] += v
			}
			for k, v := range r.Recall {
				summary.MeanRecall[k] += v
			}
			for k, v := range r.Precision {
				summary.MeanPrecision[k] += v
			}
		}

		n := float64(len(group))
		summary.MeanMRR /= n
		summary.MAP /= n
		for k := range summary.MeanNDCG {
			summary.MeanNDCG[k] /= n
		}
		for k := range summary.MeanRecall {
			summary.MeanRecall[k] /= n
		}
		for k := range summary.MeanPrecision {
			summary.MeanPrecision[k] /= n
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
