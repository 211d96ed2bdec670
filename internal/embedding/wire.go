package embedding

import (
	"fmt"

	"github.com/dishcovery/dishcovery/internal/config"
	apperrors "github.com/dishcovery/dishcovery/internal/pkg/errors"
	"github.com/dishcovery/dishcovery/internal/pkg/logger"
)

// ConfigFromApp maps the application embedding config onto the
// gateway's service config.
func ConfigFromApp(cfg config.EmbeddingConfig) ServiceConfig {
	return ServiceConfig{
		ExternalEnabled: cfg.ExternalEnabled,
		ExternalURL:     cfg.ExternalURL,
		ExternalVersion: cfg.ExternalVersion,
		ExternalDim:     cfg.ExternalDim,
		InternalDim:     cfg.InternalDim,
		BatchSize:       cfg.BatchSize,
		Timeout:         cfg.Timeout,
		MaxRetries:      cfg.MaxRetries,
		RequestsPerSec:  cfg.RequestsPerSec,
	}
}

// NewCacheFromConfig builds the configured embedding cache.
func NewCacheFromConfig(cfg config.CacheConfig, log *logger.Logger) (Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryCache(cfg.Size), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL, cfg.TTL, log)
	default:
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown cache type: %s", cfg.Type))
	}
}
