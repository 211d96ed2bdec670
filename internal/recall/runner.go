package recall

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dishcovery/dishcovery/internal/feature"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// Result holds the three strategy outputs of one recall pass. A failed
// or timed-out strategy leaves its list empty; Failures counts them so
// the caller can distinguish "no candidates" from "recall down".
type Result struct {
	Vector        []string
	Rule          []string
	Collaborative []string
	Failures      int
}

// Empty reports whether no strategy produced any candidate.
func (r Result) Empty() bool {
	return len(r.Vector) == 0 && len(r.Rule) == 0 && len(r.Collaborative) == 0
}

// Runner fans the three recall strategies out in parallel and joins
// their results. Strategies are independent and read-only, so they run
// concurrently under a shared per-strategy timeout.
type Runner struct {
	vector  Strategy
	rule    Strategy
	collab  Strategy
	timeout time.Duration
	log     *logger.Logger
}

func NewRunner(vector, rule, collab Strategy, timeout time.Duration, log *logger.Logger) *Runner {
	return &Runner{vector: vector, rule: rule, collab: collab, timeout: timeout, log: log}
}

// Run executes all three strategies and returns whatever they
// produced. A slow or failing strategy degrades to an empty list
// instead of failing the pass.
func (r *Runner) Run(ctx context.Context, user *feature.UserFeatures, poolSize int) Result {
	var result Result
	g, gctx := errgroup.WithContext(ctx)

	run := func(s Strategy, out *[]string, failed *bool) func() error {
		return func() error {
			sctx := gctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(gctx, r.timeout)
				defer cancel()
			}
			ids, err := s.Recall(sctx, user, poolSize)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					err = apperrors.TimeoutError(s.Name() + " recall")
				}
				r.log.WithStrategy(s.Name()).Warn("recall strategy degraded to empty",
					"user_id", user.UserID, "error", err)
				*failed = true
				return nil
			}
			*out = ids
			return nil
		}
	}

	var vectorFailed, ruleFailed, collabFailed bool
	g.Go(run(r.vector, &result.Vector, &vectorFailed))
	g.Go(run(r.rule, &result.Rule, &ruleFailed))
	g.Go(run(r.collab, &result.Collaborative, &collabFailed))
	_ = g.Wait()

	for _, failed := range []bool{vectorFailed, ruleFailed, collabFailed} {
		if failed {
			result.Failures++
		}
	}
	return result
}
