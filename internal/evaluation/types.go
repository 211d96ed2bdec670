package evaluation

// Judgment is one labeled user-dish relevance pair, typically derived
// from held-out favorites or explicit ratings.
type Judgment struct {
	UserID    string `json:"user_id" yaml:"user_id"`
	DishID    string `json:"dish_id" yaml:"dish_id"`
	Relevance int    `json:"relevance" yaml:"relevance"` // 0=not relevant, 1=partially, 2=relevant, 3=highly
}

// Result contains metrics for one strategy on one user.
type Result struct {
	UserID      string          `json:"user_id"`
	Strategy    string          `json:"strategy"`
	NDCG        map[int]float64 `json:"ndcg"`
	Recall      map[int]float64 `json:"recall"`
	Precision   map[int]float64 `json:"precision"`
	MRR         float64         `json:"mrr"`
	AP          float64         `json:"ap"`
	ResultCount int             `json:"result_count"`
}

// Summary aggregates one strategy's metrics across users.
type Summary struct {
	Strategy      string          `json:"strategy"`
	UserCount     int             `json:"user_count"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanMRR       float64         `json:"mean_mrr"`
	MAP           float64         `json:"map"`
}
