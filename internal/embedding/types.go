// Package embedding produces versioned vector embeddings for dishes and
// users, from an internal hashing encoder or an external service.
package embedding

import (
	"math"
	"strings"
	"time"

	"github.com/dishcovery/dishcovery/internal/pkg/errors"
)

// InternalVersion tags vectors produced by the built-in hashing encoder.
const InternalVersion = "hash-v1"

// FallbackSuffix marks vectors produced by the internal encoder after the
// external service failed. Fallback vectors are lower-confidence: they may
// be used for hard filtering but never for similarity ranking against
// external-version vectors.
const FallbackSuffix = "+fallback"

// VersionedEmbedding pairs a numeric vector with the encoder version that
// produced it. Vectors of different versions live in unrelated spaces, so
// comparing them is a defined error, never a silent computation.
type VersionedEmbedding struct {
	Vector  []float32 `json:"vector"`
	Version string    `json:"version"`
}

// IsZero reports whether the embedding is unset.
func (e VersionedEmbedding) IsZero() bool {
	return len(e.Vector) == 0 && e.Version == ""
}

// IsFallback reports whether this vector came from the degrade path.
func (e VersionedEmbedding) IsFallback() bool {
	return strings.HasSuffix(e.Version, FallbackSuffix)
}

// Cosine returns the cosine similarity to another embedding of the same
// version. Cross-version comparison returns CROSS_VERSION_COMPARE.
func (e VersionedEmbedding) Cosine(other VersionedEmbedding) (float64, error) {
	if e.Version != other.Version {
		return 0, errors.CrossVersionCompareError(e.Version, other.Version)
	}
	if len(e.Vector) != len(other.Vector) {
		return 0, errors.EmbeddingDimMismatchError(len(e.Vector), len(other.Vector))
	}
	return cosine(e.Vector, other.Vector), nil
}

// ServiceConfig describes the embedding gateway: whether to call an
// external service and how, versus the internal fallback encoder.
type ServiceConfig struct {
	// ExternalEnabled selects the external service path. When false the
	// internal encoder serves all requests and never fails on network
	// grounds.
	ExternalEnabled bool

	// ExternalURL is the embed endpoint of the external service.
	ExternalURL string

	// ExternalVersion tags vectors returned by the external service.
	ExternalVersion string

	// ExternalDim is the expected output dimension of the external
	// service. A mismatch is a hard error, never a truncate or pad.
	ExternalDim int

	// InternalDim is the dimension of internally encoded vectors.
	InternalDim int

	// BatchSize bounds items per external call.
	BatchSize int

	// Timeout bounds each external call.
	Timeout time.Duration

	// MaxRetries bounds retries of a failed batch before degrading to
	// the fallback encoding.
	MaxRetries int

	// RequestsPerSec rate-limits external calls. 0 disables the limit.
	RequestsPerSec float64
}

// DefaultServiceConfig returns internal-only defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ExternalEnabled: false,
		ExternalVersion: "ext-v1",
		ExternalDim:     256,
		InternalDim:     64,
		BatchSize:       32,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
	}
}

// FallbackVersion returns the version tag for degraded encodings.
func (c ServiceConfig) FallbackVersion() string {
	return InternalVersion + FallbackSuffix
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
