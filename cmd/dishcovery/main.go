// Package main provides the dishcovery CLI: offline recommendation,
// recall evaluation and experiment assignment tooling over a YAML
// fixture dataset.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dishcovery/dishcovery/internal/config"
	"github.com/dishcovery/dishcovery/internal/dataset"
	"github.com/dishcovery/dishcovery/internal/evaluation"
	"github.com/dishcovery/dishcovery/internal/experiment"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
	"github.com/dishcovery/dishcovery/internal/recall"
	"github.com/dishcovery/dishcovery/internal/recommend"
	"github.com/dishcovery/dishcovery/internal/scoring"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dishcovery",
		Short: "Dishcovery - canteen dish recommendation engine",
		Long: `Dishcovery ranks canteen dishes for a user by blending vector,
rule and collaborative recall, then scoring with preference, quality
and diversity signals.

Commands operate over a YAML fixture dataset of dishes, users,
experiments and relevance judgments.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("dataset", "d", "", "fixture dataset path (required)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		recommendCmd(),
		evaluateCmd(),
		assignCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// cliEnv is the shared setup every data-driven subcommand needs.
type cliEnv struct {
	cfg    *config.Config
	ds     *dataset.Dataset
	store  *recommend.MemoryStore
	log    *logger.Logger
	asJSON bool
}

func setup(cmd *cobra.Command) (*cliEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	datasetPath, _ := cmd.Flags().GetString("dataset")
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("format")

	if datasetPath == "" {
		return nil, fmt.Errorf("--dataset is required")
	}

	logLevel := "warn"
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, "text")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	ds, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, err
	}

	store := recommend.NewMemoryStore()
	ds.Populate(store)

	return &cliEnv{
		cfg:    cfg,
		ds:     ds,
		store:  store,
		log:    log,
		asJSON: format == "json",
	}, nil
}

func (e *cliEnv) newService(ctx context.Context) (*recommend.Service, error) {
	svc, err := recommend.NewService(ctx, e.cfg, e.store, e.store, e.log)
	if err != nil {
		return nil, err
	}
	if _, err := svc.ReindexDishes(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("indexing dishes: %w", err)
	}
	return svc, nil
}

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank dishes for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			keyword, _ := cmd.Flags().GetString("keyword")
			pageSize, _ := cmd.Flags().GetInt("page-size")

			env, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := env.newService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			resp, err := svc.Orchestrator.Recommend(ctx, userID, recommend.Options{
				SearchKeyword: keyword,
				PageSize:      pageSize,
			})
			if err != nil {
				return err
			}

			if env.asJSON {
				return writeJSON(cmd, resp)
			}
			printRecommendations(cmd, userID, resp)
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "user id to recommend for")
	cmd.Flags().StringP("keyword", "k", "", "search keyword to bias ranking")
	cmd.Flags().IntP("page-size", "n", 0, "page size (0 = configured default)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func printRecommendations(cmd *cobra.Command, userID string, resp *recommend.Response) {
	cmd.Printf("Recommendations for %s:\n", userID)
	if resp.Assignment != nil {
		cmd.Printf("  experiment: %s (group %s)\n", resp.Assignment.ExperimentID, resp.Assignment.GroupID)
	}
	for i, item := range resp.Items {
		b := item.Breakdown
		cmd.Printf("%3d. %-24s score=%.4f  pref=%.3f fav=%.3f browse=%.3f quality=%.3f div=%.3f search=%.3f\n",
			i+1, item.DishID, item.Score,
			b.Preference, b.Favorite, b.Browse, b.Quality, b.Diversity, b.Search)
	}
	if len(resp.Items) == 0 {
		cmd.Println("  (no candidates)")
	}
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate recall strategies against judgment sets",
		Long: `Run every recall strategy in isolation for each judged user and
report NDCG@k, recall@k, precision@k, MRR and MAP per strategy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			poolSize, _ := cmd.Flags().GetInt("pool-size")
			ks, _ := cmd.Flags().GetIntSlice("at")

			env, err := setup(cmd)
			if err != nil {
				return err
			}
			if len(env.ds.Judgments) == 0 {
				return fmt.Errorf("dataset has no judgments to evaluate against")
			}
			if poolSize <= 0 {
				poolSize = env.cfg.Recall.PoolSize
			}

			ctx := cmd.Context()
			svc, err := env.newService(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			evaluator := evaluation.NewEvaluator(svc.Strategies()...)
			evaluator.LoadJudgments(env.ds.Judgments)

			judged := make(map[string]bool, len(env.ds.Judgments))
			for _, j := range env.ds.Judgments {
				judged[j.UserID] = true
			}

			var results []*evaluation.Result
			for _, user := range env.ds.Users {
				if !judged[user.ID] {
					continue
				}
				features, err := svc.UserFeatures(ctx, user.ID)
				if err != nil {
					return fmt.Errorf("extracting features for %s: %w", user.ID, err)
				}
				userResults, err := evaluator.EvaluateUser(ctx, features, poolSize, ks)
				if err != nil {
					return fmt.Errorf("evaluating %s: %w", user.ID, err)
				}
				results = append(results, userResults...)
			}
			if len(results) == 0 {
				return fmt.Errorf("no judged users found in dataset")
			}

			summaries := evaluator.Summarize(results)
			if env.asJSON {
				return writeJSON(cmd, summaries)
			}
			printSummaries(cmd, summaries, ks)
			return nil
		},
	}

	cmd.Flags().Int("pool-size", 0, "recall pool size (0 = configured default)")
	cmd.Flags().IntSlice("at", []int{5, 10}, "cutoff ranks for @k metrics")

	return cmd
}

func printSummaries(cmd *cobra.Command, summaries []*evaluation.Summary, ks []int) {
	sorted := append([]int(nil), ks...)
	sort.Ints(sorted)

	for _, s := range summaries {
		cmd.Printf("%s (%d users)\n", s.Strategy, s.UserCount)
		for _, k := range sorted {
			cmd.Printf("  @%-3d ndcg=%.4f  recall=%.4f  precision=%.4f\n",
				k, s.MeanNDCG[k], s.MeanRecall[k], s.MeanPrecision[k])
		}
		cmd.Printf("  mrr=%.4f  map=%.4f\n", s.MeanMRR, s.MAP)
	}
}

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Show a user's experiment assignment",
		Long: `Resolve which experiment group a user falls into, with the
weight and quota overrides that group applies. Assignment is
deterministic per user, so this explains a served ranking.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")

			env, err := setup(cmd)
			if err != nil {
				return err
			}

			defaultWeights := scoring.WeightsFromConfig(env.cfg.Recommend)
			defaultQuota := recall.Quota{
				Vector:        env.cfg.Recall.VectorQuota,
				Rule:          env.cfg.Recall.RuleQuota,
				Collaborative: env.cfg.Recall.CollaborativeQuota,
			}

			assigner := experiment.NewAssigner(env.log)
			assignment := assigner.Assign(userID, env.ds.Experiments, defaultWeights, defaultQuota)

			if env.asJSON {
				if assignment == nil {
					return writeJSON(cmd, map[string]any{"assignment": nil})
				}
				return writeJSON(cmd, assignment)
			}

			if assignment == nil {
				cmd.Printf("%s: no active experiment claims this user\n", userID)
				return nil
			}
			cmd.Printf("%s: experiment %s (%s), group %s (%s)\n",
				userID, assignment.ExperimentID, assignment.ExperimentName,
				assignment.GroupID, assignment.GroupName)
			cmd.Printf("  weights: pref=%.2f fav=%.2f browse=%.2f quality=%.2f div=%.2f search=%.2f\n",
				assignment.Weights.PreferenceMatch, assignment.Weights.FavoriteSimilarity,
				assignment.Weights.BrowseRelevance, assignment.Weights.DishQuality,
				assignment.Weights.Diversity, assignment.Weights.SearchRelevance)
			cmd.Printf("  quota:   vector=%.2f rule=%.2f collab=%.2f\n",
				assignment.Quota.Vector, assignment.Quota.Rule, assignment.Quota.Collaborative)
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "user id to resolve")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("dishcovery %s\n", version)
			cmd.Printf("  commit: %s\n", commit)
			cmd.Printf("  built:  %s\n", date)
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

