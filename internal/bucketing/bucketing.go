// Package bucketing maps users onto experiment variants deterministically.
package bucketing

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/amarkanday/experimentation-platform/internal/domain"
)

// ErrNoVariants is returned for an experiment configuration without variants
var ErrNoVariants = errors.New("experiment has no variants")

// Decision is the outcome of bucketing one user into one experiment
type Decision struct {
	Variant  string
	Excluded bool
	Bucket   float64
}

// Engine is the pure variant assignment function. It holds no state and is safe for concurrent use.
type Engine struct{}

// NewEngine creates a new bucketing engine
func NewEngine() *Engine {
	return &Engine{}
}

// Assign decides which variant userID sees in the experiment, or whether the user is excluded by
// traffic allocation. Identical inputs always produce the identical decision.
func (e *Engine) Assign(userID string, cfg *domain.ExperimentConfig) (Decision, error) {
	if len(cfg.Variants) == 0 {
		return Decision{}, ErrNoVariants
	}

	bucket := Bucket(userID, cfg.Key)

	if cfg.TrafficAllocation <= 0 || bucket >= cfg.TrafficAllocation {
		return Decision{Excluded: true, Bucket: bucket}, nil
	}

	normalized := bucket / cfg.TrafficAllocation * cfg.TotalAllocation()

	cumulative := 0.0
	for _, v := range cfg.Variants {
		cumulative += v.Allocation
		if normalized < cumulative {
			return Decision{Variant: v.Key, Bucket: bucket}, nil
		}
	}

	// rounding can leave normalized at the very top of the range
	return Decision{Variant: cfg.Variants[len(cfg.Variants)-1].Key, Bucket: bucket}, nil
}

// Bucket hashes userID together with the experiment key into a uniform value in [0,1).
// Salting with the experiment key keeps a user's buckets uncorrelated across experiments.
func Bucket(userID, experimentKey string) float64 {
	sum := sha256.Sum256([]byte(userID + ":" + experimentKey))
	// 53 bits fit a float64 mantissa exactly, so the result is strictly below 1
	v := binary.BigEndian.Uint64(sum[:8]) >> 11
	return float64(v) / float64(uint64(1)<<53)
}
