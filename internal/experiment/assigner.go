package experiment

import (
	"sort"
	"time"

	"github.com/dishcovery/dishcovery/internal/pkg/hash"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/recall"
	"github.com/dishcovery/dishcovery/internal/scoring"
)

// groupBucketSuffix separates the entry hash from the group hash so the
// two decisions are independent draws over the same stable ids.
const groupBucketSuffix = "#group"

// Assigner buckets users into experiment groups. Assignment depends
// only on the user id and experiment id, never on wall-clock time or
// request order, so the same user always lands in the same group for
// the lifetime of an experiment.
type Assigner struct {
	now func() time.Time
	log *logger.Logger
}

func NewAssigner(log *logger.Logger) *Assigner {
	return &Assigner{now: time.Now, log: log}
}

// WithClock replaces the time source. Intended for tests.
func (a *Assigner) WithClock(now func() time.Time) *Assigner {
	a.now = now
	return a
}

// Assign resolves the user's experiment assignment, or nil when no
// running experiment claims them. Experiments are evaluated in
// priority order and the first claim wins; a user is never in two
// experiments at once.
func (a *Assigner) Assign(userID string, experiments []Config, defaultWeights scoring.RecommendationWeights, defaultQuota recall.Quota) *Assignment {
	if len(experiments) == 0 {
		return nil
	}

	ordered := make([]Config, len(experiments))
	copy(ordered, experiments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		if !ordered[i].StartTime.Equal(ordered[j].StartTime) {
			return ordered[i].StartTime.Before(ordered[j].StartTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	now := a.now()
	for i := range ordered {
		exp := &ordered[i]
		if !exp.ActiveAt(now) {
			continue
		}
		if err := exp.Validate(); err != nil {
			a.log.WithExperiment(exp.ID).Warn("skipping invalid experiment config", "error", err)
			continue
		}
		if hash.Bucket(userID, exp.ID) >= exp.TrafficRatio {
			continue
		}

		group := pickGroup(userID, exp)
		return &Assignment{
			ExperimentID:   exp.ID,
			ExperimentName: exp.Name,
			GroupID:        group.ID,
			GroupName:      group.Name,
			Weights:        group.Weights.ApplyTo(defaultWeights),
			Quota:          group.Quota.ApplyTo(defaultQuota),
		}
	}
	return nil
}

// pickGroup maps a second bucket draw onto the cumulative ratio
// partition of the experiment's groups. Validate has already
// established the ratios sum to 1, so the final group absorbs any
// float remainder.
func pickGroup(userID string, exp *Config) *GroupItem {
	bucket := hash.Bucket(userID, exp.ID+groupBucketSuffix)
	var cumulative float64
	for i := range exp.Groups {
		cumulative += exp.Groups[i].Ratio
		if bucket < cumulative {
			return &exp.Groups[i]
		}
	}
	return &exp.Groups[len(exp.Groups)-1]
}
