package evaluation

import (
	"context"
	"math"
	"testing"

	"github.com/dishcovery/dishcovery/internal/feature"
)

func TestPrecisionAtK(t *testing.T) {
	tests := []struct {
		name       string
		relevances []int
		k          int
		want       float64
	}{
		{"all relevant", []int{2, 3, 1}, 3, 1.0},
		{"half relevant", []int{2, 0, 1, 0}, 4, 0.5},
		{"top heavy", []int{2, 2, 0, 0}, 2, 1.0},
		{"none relevant", []int{0, 0, 0}, 3, 0},
		{"k beyond list", []int{2, 0}, 10, 0.5},
		{"empty", nil, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Precision(tt.relevances, tt.k, 1); got != tt.want {
				t.Errorf("Precision() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecallAtK(t *testing.T) {
	// Two of three relevant dishes appear in the top 2.
	relevances := []int{2, 1, 0, 3}
	if got := Recall(relevances, 2, 1); got != 2.0/3.0 {
		t.Errorf("Recall() = %v, want 2/3", got)
	}
	if got := Recall([]int{0, 0}, 2, 1); got != 0 {
		t.Errorf("Recall() with no relevant = %v, want 0", got)
	}
}

func TestMRR(t *testing.T) {
	if got := MRR([]int{0, 0, 2, 1}, 1); got != 1.0/3.0 {
		t.Errorf("MRR() = %v, want 1/3", got)
	}
	if got := MRR([]int{3}, 1); got != 1 {
		t.Errorf("MRR() = %v, want 1", got)
	}
	if got := MRR([]int{0, 0}, 1); got != 0 {
		t.Errorf("MRR() = %v, want 0", got)
	}
}

func TestNDCGPerfectRanking(t *testing.T) {
	if got := NDCG([]int{3, 2, 1, 0}, 4); math.Abs(got-1) > 1e-12 {
		t.Errorf("NDCG() of ideal order = %v, want 1", got)
	}

	worst := NDCG([]int{0, 1, 2, 3}, 4)
	if worst >= 1 || worst <= 0 {
		t.Errorf("NDCG() of inverted order = %v, want in (0,1)", worst)
	}
}

func TestAveragePrecision(t *testing.T) {
	// Relevant at ranks 1 and 3: (1/1 + 2/3) / 2.
	got := AveragePrecision([]int{2, 0, 1}, 1)
	want := (1.0 + 2.0/3.0) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("AveragePrecision() = %v, want %v", got, want)
	}
}

type fixedStrategy struct {
	name string
	ids  []string
}

func (s *fixedStrategy) Name() string { return s.name }

func (s *fixedStrategy) Recall(ctx context.Context, user *feature.UserFeatures, poolSize int) ([]string, error) {
	return s.ids, nil
}

func TestEvaluatorRanksStrategies(t *testing.T) {
	good := &fixedStrategy{name: "good", ids: []string{"d1", "d2", "d3"}}
	bad := &fixedStrategy{name: "bad", ids: []string{"d9", "d8", "d1"}}

	e := NewEvaluator(good, bad)
	e.LoadJudgments([]Judgment{
		{UserID: "u1", DishID: "d1", Relevance: 3},
		{UserID: "u1", DishID: "d2", Relevance: 2},
	})

	user := &feature.UserFeatures{UserID: "u1"}
	results, err := e.EvaluateUser(context.Background(), user, 10, []int{3})
	if err != nil {
		t.Fatalf("EvaluateUser() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	byName := map[string]*Result{}
	for _, r := range results {
		byName[r.Strategy] = r
	}
	if byName["good"].Precision[3] <= byName["bad"].Precision[3] {
		t.Errorf("good strategy precision %v not above bad %v",
			byName["good"].Precision[3], byName["bad"].Precision[3])
	}
	if byName["good"].MRR != 1 {
		t.Errorf("good strategy MRR = %v, want 1", byName["good"].MRR)
	}
	if byName["bad"].MRR != 1.0/3.0 {
		t.Errorf("bad strategy MRR = %v, want 1/3", byName["bad"].MRR)
	}

	summaries := e.Summarize(results)
	if len(summaries) != 2 || summaries[0].Strategy != "good" {
		t.Errorf("Summarize() order = %+v", summaries)
	}
	if summaries[0].UserCount != 1 {
		t.Errorf("UserCount = %d, want 1", summaries[0].UserCount)
	}
}
