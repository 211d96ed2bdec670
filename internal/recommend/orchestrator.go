package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/dishcovery/dishcovery/internal/bus"
	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/feature"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/recall"
	"github.com/dishcovery/dishcovery/internal/scoring"
)

// Options are the per-request knobs of a recommendation call.
type Options struct {
	SearchKeyword string
	PageSize      int
}

// Response is one recommendation result: the ranked page plus the
// experiment assignment that shaped it, nil when the user fell through
// to defaults.
type Response struct {
	Items      []scoring.ScoredDish   `json:"items"`
	Assignment *experiment.Assignment `json:"assignment,omitempty"`
}

// ServedPayload is the recommend.served event body.
type ServedPayload struct {
	UserID       string    `json:"user_id"`
	DishIDs      []string  `json:"dish_ids"`
	Scores       []float64 `json:"scores"`
	ExperimentID string    `json:"experiment_id,omitempty"`
	GroupID      string    `json:"group_id,omitempty"`
	Keyword      string    `json:"keyword,omitempty"`
}

// Orchestrator runs one recommendation request end to end.
type Orchestrator struct {
	cfg         config.RecommendConfig
	recallCfg   config.RecallConfig
	store       Store
	experiments ExperimentSource
	extractor   *feature.Extractor
	dishCache   *feature.Cache
	assigner    *experiment.Assigner
	runner      *recall.Runner
	engine      *scoring.Engine
	events      bus.Bus
	log         *logger.Logger
}

// NewOrchestrator wires the recommendation pipeline. events may be a
// NoopBus when event emission is disabled.
func NewOrchestrator(
	cfg config.RecommendConfig,
	recallCfg config.RecallConfig,
	store Store,
	experiments ExperimentSource,
	extractor *feature.Extractor,
	dishCache *feature.Cache,
	assigner *experiment.Assigner,
	runner *recall.Runner,
	engine *scoring.Engine,
	events bus.Bus,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		recallCfg:   recallCfg,
		store:       store,
		experiments: experiments,
		extractor:   extractor,
		dishCache:   dishCache,
		assigner:    assigner,
		runner:      runner,
		engine:      engine,
		events:      events,
		log:         log,
	}
}

// Recommend produces a ranked page of dishes for the user.
func (o *Orchestrator) Recommend(ctx context.Context, userID string, opts Options) (*Response, error) {
	if userID == "" {
		return nil, apperrors.ValidationError("user id is empty")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = o.cfg.PageSize
	}
	log := o.log.WithUser(userID)

	user, err := o.loadUserFeatures(ctx, userID, log)
	if err != nil {
		return nil, err
	}

	assignment := o.resolveAssignment(ctx, userID, log)
	weights := scoring.WeightsFromConfig(o.cfg)
	quota := recall.Quota{
		Vector:        o.recallCfg.VectorQuota,
		Rule:          o.recallCfg.RuleQuota,
		Collaborative: o.recallCfg.CollaborativeQuota,
	}
	if assignment != nil {
		weights = assignment.Weights
		quota = assignment.Quota
	}

	recalled := o.runner.Run(ctx, user, o.recallCfg.PoolSize)
	if recalled.Failures == 3 {
		return nil, apperrors.New(apperrors.CodeUnavailable, "recommendations temporarily unavailable")
	}

	overFetch := o.cfg.OverFetchFactor
	if overFetch < 1 {
		overFetch = 1
	}
	candidateIDs := recall.Blend(recalled.Vector, recalled.Rule, recalled.Collaborative, quota, pageSize*overFetch)

	candidates := o.resolveCandidates(ctx, candidateIDs, log)
	items := o.rank(candidates, user, weights, opts.SearchKeyword, pageSize)

	o.publishEvents(ctx, userID, opts, items, assignment, log)
	return &Response{Items: items, Assignment: assignment}, nil
}

// loadUserFeatures assembles the user snapshot from the three
// independently persisted signal sources. A failed favorites or browse
// load degrades that signal to empty; only the preference row failing
// hard surfaces as upstream unavailability.
func (o *Orchestrator) loadUserFeatures(ctx context.Context, userID string, log *logger.Logger) (*feature.UserFeatures, error) {
	prefs, err := o.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, apperrors.UpstreamUnavailableError("preferences", err)
	}

	favorites, err := o.store.GetFavorites(ctx, userID)
	if err != nil {
		log.Warn("favorite load failed, continuing without favorites", "error", err)
		favorites = nil
	}
	browse, err := o.store.GetBrowseEvents(ctx, userID)
	if err != nil {
		log.Warn("browse load failed, continuing without browse history", "error", err)
		browse = nil
	}

	return o.extractor.ExtractUserFeatures(userID, prefs, favorites, browse)
}

// resolveAssignment fetches one experiment snapshot for the whole
// request. A failed fetch falls back to default config.
func (o *Orchestrator) resolveAssignment(ctx context.Context, userID string, log *logger.Logger) *experiment.Assignment {
	configs, err := o.experiments.ListExperiments(ctx)
	if err != nil {
		log.Warn("experiment config load failed, using defaults", "error", err)
		return nil
	}
	defaultQuota := recall.Quota{
		Vector:        o.recallCfg.VectorQuota,
		Rule:          o.recallCfg.RuleQuota,
		Collaborative: o.recallCfg.CollaborativeQuota,
	}
	return o.assigner.Assign(userID, configs, scoring.WeightsFromConfig(o.cfg), defaultQuota)
}

// resolveCandidates turns blended ids into dish features via the
// read-through cache, dropping ids whose rows are missing or corrupt.
func (o *Orchestrator) resolveCandidates(ctx context.Context, ids []string, log *logger.Logger) []*feature.DishFeatures {
	dishes, skipped := o.dishCache.GetMany(ctx, ids)
	for id, err := range skipped {
		// A recalled id with no row left is a stale index entry, not
		// an upstream fault.
		if apperrors.IsNotFound(err) {
			log.Debug("dropping candidate missing from store", "dish_id", id)
			continue
		}
		log.Warn("dropping unresolvable candidate", "dish_id", id, "error", err)
	}
	return dishes
}

// rank greedily builds the final page. Each step rescores only the
// remaining candidates' diversity term against the selection so far
// and picks the best; this is the only ordering that honors the
// order-dependent diversity score.
func (o *Orchestrator) rank(candidates []*feature.DishFeatures, user *feature.UserFeatures, weights scoring.RecommendationWeights, keyword string, pageSize int) []scoring.ScoredDish {
	// A user with no personalization signals and no keyword gets a
	// pure quality ordering; diversity must not reorder it.
	if !user.HasSignals() && keyword == "" {
		weights.Diversity = 0
	}

	pool := make([]scoring.ScoredDish, 0, len(candidates))
	for _, d := range candidates {
		sd, err := o.engine.Score(d, user, weights, scoring.Context{SearchKeyword: keyword})
		if err != nil {
			o.log.WithUser(user.UserID).Warn("skipping unscorable candidate", "dish_id", d.ID, "error", err)
			continue
		}
		pool = append(pool, sd)
	}

	selected := make([]scoring.ScoredDish, 0, pageSize)
	selectedDishes := make([]*feature.DishFeatures, 0, pageSize)
	for len(selected) < pageSize && len(pool) > 0 {
		best := 0
		for i := range pool {
			pool[i] = o.engine.Rediversify(pool[i], selectedDishes, weights)
			if i > 0 && scoring.Less(pool[i], pool[best]) {
				best = i
			}
		}
		pick := pool[best]
		pool = append(pool[:best], pool[best+1:]...)
		selected = append(selected, pick)
		selectedDishes = append(selectedDishes, pick.Dish)
	}
	return selected
}

func (o *Orchestrator) publishEvents(ctx context.Context, userID string, opts Options, items []scoring.ScoredDish, assignment *experiment.Assignment, log *logger.Logger) {
	payload := ServedPayload{
		UserID:  userID,
		DishIDs: make([]string, len(items)),
		Scores:  make([]float64, len(items)),
		Keyword: opts.SearchKeyword,
	}
	for i, item := range items {
		payload.DishIDs[i] = item.DishID
		payload.Scores[i] = item.Score
	}
	if assignment != nil {
		payload.ExperimentID = assignment.ExperimentID
		payload.GroupID = assignment.GroupID

		event := bus.NewEvent(eventID(userID), bus.TopicExperimentAssigned, assignment)
		if err := o.events.Publish(ctx, bus.TopicExperimentAssigned, event); err != nil {
			log.Warn("failed to publish assignment event", "error", err)
		}
	}

	event := bus.NewEvent(eventID(userID), bus.TopicRecommendServed, payload)
	if err := o.events.Publish(ctx, bus.TopicRecommendServed, event); err != nil {
		log.Warn("failed to publish served event", "error", err)
	}
}

func eventID(userID string) string {
	return fmt.Sprintf("%s-%d", userID, time.Now().UnixNano())
}
