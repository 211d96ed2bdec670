// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Recommendation configuration
	Recommend RecommendConfig `yaml:"recommend"`

	// Feature extraction configuration
	Feature FeatureConfig `yaml:"feature"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Recall configuration
	Recall RecallConfig `yaml:"recall"`

	// Scoring configuration
	Scoring ScoringConfig `yaml:"scoring"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// RecommendConfig holds orchestrator settings.
type RecommendConfig struct {
	PageSize        int `envconfig:"DISH_PAGE_SIZE" yaml:"page_size"`
	OverFetchFactor int `envconfig:"DISH_OVER_FETCH_FACTOR" yaml:"over_fetch_factor"`

	// Default weights for the six scoring terms; experiment groups may
	// override any subset of them.
	PreferenceWeight float64 `envconfig:"DISH_WEIGHT_PREFERENCE" yaml:"preference_weight"`
	FavoriteWeight   float64 `envconfig:"DISH_WEIGHT_FAVORITE" yaml:"favorite_weight"`
	BrowseWeight     float64 `envconfig:"DISH_WEIGHT_BROWSE" yaml:"browse_weight"`
	QualityWeight    float64 `envconfig:"DISH_WEIGHT_QUALITY" yaml:"quality_weight"`
	DiversityWeight  float64 `envconfig:"DISH_WEIGHT_DIVERSITY" yaml:"diversity_weight"`
	SearchWeight     float64 `envconfig:"DISH_WEIGHT_SEARCH" yaml:"search_weight"`
}

// FeatureConfig holds feature extraction settings.
type FeatureConfig struct {
	BrowseHalfLife time.Duration `envconfig:"DISH_BROWSE_HALF_LIFE" yaml:"browse_half_life"`
	BrowseHorizon  time.Duration `envconfig:"DISH_BROWSE_HORIZON" yaml:"browse_horizon"`
	RecentDishCap  int           `envconfig:"DISH_RECENT_DISH_CAP" yaml:"recent_dish_cap"`
	DishCacheTTL   time.Duration `envconfig:"DISH_FEATURE_CACHE_TTL" yaml:"dish_cache_ttl"`
	DishCacheSize  int           `envconfig:"DISH_FEATURE_CACHE_SIZE" yaml:"dish_cache_size"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	ExternalEnabled bool          `envconfig:"DISH_EMBED_EXTERNAL" yaml:"external_enabled"`
	ExternalURL     string        `envconfig:"DISH_EMBED_URL" yaml:"external_url"`
	ExternalVersion string        `envconfig:"DISH_EMBED_VERSION" yaml:"external_version"`
	ExternalDim     int           `envconfig:"DISH_EMBED_EXTERNAL_DIM" yaml:"external_dim"`
	InternalDim     int           `envconfig:"DISH_EMBED_INTERNAL_DIM" yaml:"internal_dim"`
	BatchSize       int           `envconfig:"DISH_EMBED_BATCH_SIZE" yaml:"batch_size"`
	Timeout         time.Duration `envconfig:"DISH_EMBED_TIMEOUT" yaml:"timeout"`
	MaxRetries      int           `envconfig:"DISH_EMBED_MAX_RETRIES" yaml:"max_retries"`
	RequestsPerSec  float64       `envconfig:"DISH_EMBED_RPS" yaml:"requests_per_sec"`
}

// RecallConfig holds candidate-recall settings.
type RecallConfig struct {
	PoolSize        int           `envconfig:"DISH_RECALL_POOL_SIZE" yaml:"pool_size"`
	StrategyTimeout time.Duration `envconfig:"DISH_RECALL_TIMEOUT" yaml:"strategy_timeout"`

	// Default quota ratios; experiment groups may override them.
	VectorQuota        float64 `envconfig:"DISH_QUOTA_VECTOR" yaml:"vector_quota"`
	RuleQuota          float64 `envconfig:"DISH_QUOTA_RULE" yaml:"rule_quota"`
	CollaborativeQuota float64 `envconfig:"DISH_QUOTA_COLLAB" yaml:"collaborative_quota"`
}

// ScoringConfig holds scoring engine settings.
type ScoringConfig struct {
	QualityPriorMean   float64 `envconfig:"DISH_QUALITY_PRIOR_MEAN" yaml:"quality_prior_mean"`
	QualityPriorWeight float64 `envconfig:"DISH_QUALITY_PRIOR_WEIGHT" yaml:"quality_prior_weight"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Enabled    bool   `envconfig:"DISH_QDRANT_ENABLED" yaml:"enabled"`
	Host       string `envconfig:"DISH_QDRANT_HOST" yaml:"host"`
	Port       int    `envconfig:"DISH_QDRANT_PORT" yaml:"port"`
	APIKey     string `envconfig:"DISH_QDRANT_API_KEY" yaml:"api_key"`
	UseTLS     bool   `envconfig:"DISH_QDRANT_TLS" yaml:"use_tls"`
	Collection string `envconfig:"DISH_QDRANT_COLLECTION" yaml:"collection"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Type     string        `envconfig:"DISH_CACHE_TYPE" yaml:"type"`
	Size     int           `envconfig:"DISH_CACHE_SIZE" yaml:"size"`
	TTL      time.Duration `envconfig:"DISH_CACHE_TTL" yaml:"ttl"` // 0 = no expiry
	RedisURL string        `envconfig:"DISH_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type          string `envconfig:"DISH_BUS_TYPE" yaml:"type"`
	KafkaBrokers  string `envconfig:"DISH_KAFKA_BROKERS" yaml:"kafka_brokers"`
	ConsumerGroup string `envconfig:"DISH_KAFKA_GROUP" yaml:"consumer_group"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"DISH_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"DISH_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Recommend = RecommendConfig{
		PageSize:         20,
		OverFetchFactor:  3,
		PreferenceWeight: 1.0,
		FavoriteWeight:   1.0,
		BrowseWeight:     0.8,
		QualityWeight:    1.2,
		DiversityWeight:  0.6,
		SearchWeight:     1.5,
	}

	cfg.Feature = FeatureConfig{
		BrowseHalfLife: 7 * 24 * time.Hour,
		BrowseHorizon:  30 * 24 * time.Hour,
		RecentDishCap:  50,
		DishCacheTTL:   5 * time.Minute,
		DishCacheSize:  10000,
	}

	cfg.Embedding = EmbeddingConfig{
		ExternalEnabled: false,
		ExternalVersion: "ext-v1",
		ExternalDim:     256,
		InternalDim:     64,
		BatchSize:       32,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		RequestsPerSec:  20,
	}

	cfg.Recall = RecallConfig{
		PoolSize:           200,
		StrategyTimeout:    2 * time.Second,
		VectorQuota:        0.5,
		RuleQuota:          0.3,
		CollaborativeQuota: 0.2,
	}

	cfg.Scoring = ScoringConfig{
		QualityPriorMean:   3.5,
		QualityPriorWeight: 10,
	}

	cfg.Qdrant = QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "dishes",
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     10000,
		TTL:      0,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:          "memory",
		ConsumerGroup: "dishcovery",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Recommend.PageSize < 1 {
		errs = append(errs, "page size must be at least 1")
	}
	if c.Recommend.OverFetchFactor < 1 {
		errs = append(errs, "over-fetch factor must be at least 1")
	}

	for name, w := range map[string]float64{
		"preference": c.Recommend.PreferenceWeight,
		"favorite":   c.Recommend.FavoriteWeight,
		"browse":     c.Recommend.BrowseWeight,
		"quality":    c.Recommend.QualityWeight,
		"diversity":  c.Recommend.DiversityWeight,
		"search":     c.Recommend.SearchWeight,
	} {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be non-negative", name))
		}
	}

	for name, q := range map[string]float64{
		"vector":        c.Recall.VectorQuota,
		"rule":          c.Recall.RuleQuota,
		"collaborative": c.Recall.CollaborativeQuota,
	} {
		if q < 0 || q > 1 {
			errs = append(errs, fmt.Sprintf("%s quota must be within [0,1]", name))
		}
	}

	if c.Recall.PoolSize < 1 {
		errs = append(errs, "recall pool size must be at least 1")
	}

	if c.Feature.BrowseHalfLife <= 0 {
		errs = append(errs, "browse half-life must be positive")
	}
	if c.Feature.RecentDishCap < 1 {
		errs = append(errs, "recent dish cap must be at least 1")
	}

	if c.Embedding.InternalDim < 8 {
		errs = append(errs, "internal embedding dimension must be at least 8")
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, "embedding batch size must be at least 1")
	}
	if c.Embedding.ExternalEnabled && c.Embedding.ExternalURL == "" {
		errs = append(errs, "external embedding URL required when external mode is enabled")
	}
	if c.Embedding.ExternalEnabled && c.Embedding.ExternalDim < 8 {
		errs = append(errs, "external embedding dimension must be at least 8")
	}

	if c.Scoring.QualityPriorMean < 0 || c.Scoring.QualityPriorMean > 5 {
		errs = append(errs, "quality prior mean must be within [0,5]")
	}
	if c.Scoring.QualityPriorWeight < 0 {
		errs = append(errs, "quality prior weight must be non-negative")
	}

	validCache := map[string]bool{"memory": true, "redis": true}
	if !validCache[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory or redis)", c.Cache.Type))
	}

	validBus := map[string]bool{"memory": true, "kafka": true, "noop": true}
	if !validBus[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory, kafka, or noop)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka brokers required when bus type is kafka")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// KafkaBrokerList splits the configured broker string into addresses.
func (c *BusConfig) KafkaBrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
