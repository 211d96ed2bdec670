// Package experiment buckets users into experiment groups with
// deterministic hashing and resolves the group's weight and quota
// overrides against the configured defaults.
package experiment

import (
	"fmt"
	"time"

	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"

	"github.com/dishcovery/dishcovery/internal/recall"
	"github.com/dishcovery/dishcovery/internal/scoring"
)

// Status is the experiment lifecycle state. Only running experiments
// participate in assignment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// transitions encodes draft -> running -> (paused <-> running) -> completed.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusRunning},
	StatusRunning:   {StatusPaused, StatusCompleted},
	StatusPaused:    {StatusRunning, StatusCompleted},
	StatusCompleted: nil,
}

// Valid reports whether the status is one of the four lifecycle states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the lifecycle allows moving to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// GroupItem is one group of an experiment. Ratio is the group's share
// of the experiment's traffic; the overrides are partial and merge onto
// the defaults at assignment time.
type GroupItem struct {
	ID      string                  `yaml:"id"`
	Name    string                  `yaml:"name"`
	Ratio   float64                 `yaml:"ratio"`
	Weights *scoring.WeightOverride `yaml:"weights"`
	Quota   *scoring.QuotaOverride  `yaml:"quota"`
}

// Config is one experiment as supplied by the experiment-config
// collaborator. Read-only from this core's perspective.
type Config struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Priority     int         `yaml:"priority"`
	TrafficRatio float64     `yaml:"traffic_ratio"`
	Groups       []GroupItem `yaml:"groups"`
	StartTime    time.Time   `yaml:"start_time"`
	EndTime      *time.Time  `yaml:"end_time"`
	Status       Status      `yaml:"status"`
}

// ratioTolerance absorbs float accumulation when checking that group
// ratios partition the experiment's traffic.
const ratioTolerance = 1e-6

// Validate checks the config shape the assigner depends on. Failures
// carry EXPERIMENT_CONFIG_INVALID so assignment-time skips are
// attributable in logs. The assigner also runs this per request as a
// defensive check and skips invalid experiments instead of failing
// the request.
func (c *Config) Validate() error {
	if reason := c.invalidReason(); reason != "" {
		return apperrors.ExperimentConfigInvalidError(c.ID, reason)
	}
	return nil
}

func (c *Config) invalidReason() string {
	if c.ID == "" {
		return "experiment id is empty"
	}
	if !c.Status.Valid() {
		return fmt.Sprintf("unknown status %q", c.Status)
	}
	if c.TrafficRatio < 0 || c.TrafficRatio > 1 {
		return fmt.Sprintf("traffic ratio %v outside [0,1]", c.TrafficRatio)
	}
	if len(c.Groups) == 0 {
		return "experiment has no groups"
	}
	var sum float64
	for _, g := range c.Groups {
		if g.ID == "" {
			return "group has no id"
		}
		if g.Ratio < 0 || g.Ratio > 1 {
			return fmt.Sprintf("group %s ratio %v outside [0,1]", g.ID, g.Ratio)
		}
		sum += g.Ratio
	}
	if diff := sum - 1; diff > ratioTolerance || diff < -ratioTolerance {
		return fmt.Sprintf("group ratios sum to %v, want 1", sum)
	}
	return ""
}

// ActiveAt reports whether the experiment takes live traffic at t:
// running status and t within [StartTime, EndTime). No end time means
// open-ended.
func (c *Config) ActiveAt(t time.Time) bool {
	if c.Status != StatusRunning {
		return false
	}
	if t.Before(c.StartTime) {
		return false
	}
	if c.EndTime != nil && !t.Before(*c.EndTime) {
		return false
	}
	return true
}

// Assignment is the resolved result of bucketing one user into one
// group. Constructed per request, never persisted here.
type Assignment struct {
	ExperimentID   string                        `json:"experiment_id"`
	ExperimentName string                        `json:"experiment_name"`
	GroupID        string                        `json:"group_id"`
	GroupName      string                        `json:"group_name"`
	Weights        scoring.RecommendationWeights `json:"weights"`
	Quota          recall.Quota                  `json:"quota"`
}
